// export.go implements the default action of the root command: one
// full export run.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/deepexport/internal/config"
	"github.com/shinji-kodama/deepexport/internal/logging"
	"github.com/shinji-kodama/deepexport/internal/metrics"
	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository/s3store"
	"github.com/shinji-kodama/deepexport/internal/repository/sqlrepo"
	"github.com/shinji-kodama/deepexport/internal/run"
)

// runExport resolves the settings, runs the export and prints the
// summary. The summary is printed even when the run fails part way, so
// the operator sees how far it got.
func runExport(cmd *cobra.Command, flags *settingsFlags) error {
	cfg, err := loadSettings(cmd, flags)
	if err != nil {
		return model.WrapCLIError(model.ExitCodeFor(err), "could not load settings", err)
	}

	connector, err := newConnector(cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "could not configure repository", err)
	}

	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		if collector, err = metrics.NewCollector(metrics.DefaultNamespace, nil); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "could not set up metrics", err)
		}
	}

	out := cmd.OutOrStdout()
	if !IsJSONOutput() {
		printHeader(out, cfg, time.Now())
	}

	runner := run.New(run.Options{
		Connector: connector,
		Console:   console(),
		Metrics:   collector,
	})
	sum, err := runner.Run(contextOf(cmd), cfg)

	if sum != nil {
		if perr := printSummary(out, sum, IsJSONOutput()); perr != nil {
			return model.WrapCLIError(model.ExitGeneralError, "could not print summary", perr)
		}
	}
	if err != nil {
		return model.WrapCLIError(model.ExitCodeFor(err), "export failed", err)
	}
	return nil
}

// newConnector builds the SQL repository connector, with an object
// store for s3:// content when one is configured.
func newConnector(cfg *config.Config) (*sqlrepo.Connector, error) {
	c := &sqlrepo.Connector{
		Driver:           cfg.Repository.Driver,
		DSN:              cfg.Repository.DSN,
		QueriesPerSecond: cfg.Repository.MaxQueriesPerSecond,
	}

	if verbose {
		log, err := logging.New(logging.Config{Level: "debug", Format: cfg.Log.Format, Writer: os.Stderr})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrConfig, err)
		}
		c.Logger = log
	}

	if cfg.S3.Enabled() {
		store, err := s3store.New(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrConfig, err)
		}
		c.Objects = store
		VerboseLog("offloaded content is read from %s", cfg.S3.Endpoint)
	}
	return c, nil
}

// console returns the writer run log records are copied to.
func console() io.Writer {
	if verbose {
		return os.Stderr
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
