// Package cli implements the cobra-based CLI for deepexport.
//
// The root command runs an export. The count subcommand only reports the
// expected totals. Settings are resolved in this order, later sources
// winning: the settings file, DEEPEXPORT_* environment variables, then
// command line flags.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/deepexport/internal/config"
	"github.com/shinji-kodama/deepexport/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether the run summary is formatted as JSON.
	// When false (default), output uses human-readable text format.
	jsonOutput bool

	// verbose copies every run log record to stderr and enables
	// per-query debug output from the repository driver.
	verbose bool
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// settingsFlags holds the flags that override settings file and
// environment values. A flag only wins when it was set explicitly.
type settingsFlags struct {
	configPath  string
	repository  string
	user        string
	password    string
	driver      string
	dsn         string
	source      string
	target      string
	versions    bool
	pageSize    int
	metricsFile string
}

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// Running the root command without a subcommand performs the export.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&settingsFlags{})
}

func newRootCommand(flags *settingsFlags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "deepexport",
		Short: "Export a repository folder tree to the local filesystem",
		Long: `deepexport mirrors a content repository folder, and everything below it,
into a local directory. Document content is written as files named after
the repository objects; existing files are never overwritten.

Settings are read from deepexport.yaml (or --config), then from
DEEPEXPORT_* environment variables, then from flags.

Examples:
  deepexport --source /Temp --target /srv/export
  deepexport --versions --config prod.yaml
  deepexport count --source /Finance --json`,

		// Anything that is not a flag is a usage error; show the help
		// so the user sees the accepted settings.
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				_ = cmd.Usage()
				return model.NewCLIError(model.ExitConfigError,
					fmt.Sprintf("unexpected arguments: %s", strings.Join(args, " ")))
			}
			return nil
		},

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, flags)
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		_ = cmd.Usage()
		return model.WrapCLIError(model.ExitConfigError, "invalid flags", err)
	})

	// PersistentFlags are inherited by all subcommands. This is the cobra
	// mechanism for global flags: any flag defined here is automatically
	// available in every subcommand without re-declaration.
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&jsonOutput, "json", false, "Output the run summary in JSON format")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Copy the run log to stderr")
	pf.StringVar(&flags.configPath, "config", config.DefaultPath, "Settings file (YAML, or JSON with comments)")
	pf.StringVar(&flags.repository, "repository", "", "Repository name")
	pf.StringVar(&flags.user, "user", "", "Repository user name")
	pf.StringVar(&flags.password, "password", "", "Repository password")
	pf.StringVar(&flags.driver, "driver", "", "Repository database driver: sqlite, postgres")
	pf.StringVar(&flags.dsn, "dsn", "", "Repository database data source name")
	pf.StringVar(&flags.source, "source", "", "Repository folder to export, e.g. /Temp")
	pf.StringVar(&flags.target, "target", "", "Existing local directory to export into")
	pf.BoolVar(&flags.versions, "versions", false, "Export every version of each document")
	pf.IntVar(&flags.pageSize, "page-size", 0, "Rows read per children query (default 4000)")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	rootCmd.AddCommand(NewCountCommand(flags))

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// CLIError types carry their own exit codes; other errors are mapped
// from their fatal class (configuration, precondition, authentication,
// query), defaulting to exit code 1.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(int(handleError(err)))
	}
}

// handleError prints err and returns the process exit code for it.
func handleError(err error) model.ExitCode {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(cliErr.Message, cliErr.Err)
		return cliErr.Code
	}
	printError(err.Error(), nil)
	return model.ExitCodeFor(err)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout is
		// reserved for the run summary.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		if underlying != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, underlying)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", message)
		}
	}
}

// VerboseLog prints a message to stderr only when verbose mode is enabled.
func VerboseLog(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// loadSettings merges the settings file, the environment and the
// explicitly set flags, then applies defaults. It does not validate.
func loadSettings(cmd *cobra.Command, f *settingsFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.LoadOptional(f.configPath)
	}
	if err != nil {
		return nil, err
	}
	VerboseLog("settings file: %s", f.configPath)

	config.ApplyEnvOverrides(cfg)

	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("repository", func() { cfg.Repository.Name = f.repository })
	set("user", func() { cfg.Repository.User = f.user })
	set("password", func() { cfg.Repository.Password = f.password })
	set("driver", func() { cfg.Repository.Driver = f.driver })
	set("dsn", func() { cfg.Repository.DSN = f.dsn })
	set("source", func() { cfg.Source = f.source })
	set("target", func() { cfg.Target = f.target })
	set("versions", func() { cfg.Versions = f.versions })
	set("page-size", func() { cfg.PageSize = f.pageSize })
	set("metrics-file", func() { cfg.MetricsFile = f.metricsFile })

	config.ApplyDefaults(cfg)
	return cfg, nil
}
