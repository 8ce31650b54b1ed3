// count.go implements the "deepexport count" command.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/run"
)

// NewCountCommand creates the "count" cobra command. It shares the
// settings flags of the root command.
func NewCountCommand(flags *settingsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Report how many folders and documents an export would visit",
		Long: `Connect to the repository, check that the source folder exists and
report the number of sub folders and documents with content below it.
Nothing is written to the target directory.

Examples:
  deepexport count --source /Temp
  deepexport count --source /Temp --versions --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCount(cmd, flags)
		},
	}
}

func runCount(cmd *cobra.Command, flags *settingsFlags) error {
	cfg, err := loadSettings(cmd, flags)
	if err != nil {
		return model.WrapCLIError(model.ExitCodeFor(err), "could not load settings", err)
	}

	connector, err := newConnector(cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "could not configure repository", err)
	}

	sum, err := run.New(run.Options{Connector: connector, Console: console()}).Count(contextOf(cmd), cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitCodeFor(err), "count failed", err)
	}
	return printTotals(cmd.OutOrStdout(), sum, IsJSONOutput())
}
