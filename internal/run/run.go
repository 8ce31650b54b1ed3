// Package run orchestrates one export: it validates the settings,
// connects to the repository, prepares the run log, checks the source
// folder, reports the expected totals, walks the tree and returns a
// Summary.
//
// The session is released exactly once on every path after a
// successful connect.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/shinji-kodama/deepexport/internal/config"
	"github.com/shinji-kodama/deepexport/internal/export"
	"github.com/shinji-kodama/deepexport/internal/logging"
	"github.com/shinji-kodama/deepexport/internal/metrics"
	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository"
)

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID      string `json:"runId"`
	Repository string `json:"repository"`
	Source     string `json:"source"`
	Target     string `json:"target,omitempty"`
	Versions   bool   `json:"versions"`

	// LogFile is the run log path. Empty when the run stopped before it
	// was opened.
	LogFile string `json:"logFile,omitempty"`

	Expected model.Totals   `json:"expected"`
	Counters model.Counters `json:"counters"`

	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Duration   time.Duration `json:"durationNs"`
}

// Options configures a Runner.
type Options struct {
	// Connector opens the repository session.
	Connector repository.Connector

	// Console, when set, receives a copy of every run log record.
	Console io.Writer

	// Metrics is optional. It is written to Config.MetricsFile at the end
	// of an export.
	Metrics *metrics.Collector

	// Now defaults to time.Now.
	Now func() time.Time

	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

// Runner runs exports.
type Runner struct {
	opts Options
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	return &Runner{opts: opts}
}

// Run performs one export with cfg, which must already have defaults
// applied. The returned Summary is non-nil whenever a session was opened,
// including when err is non-nil; its counters then cover the work done
// before the failure.
func (r *Runner) Run(ctx context.Context, cfg *config.Config) (sum *Summary, err error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	sum = r.newSummary(cfg)

	sess, err := r.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := sess.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("release session: %w", rerr)
		}
	}()

	if err := checkTarget(cfg.Target); err != nil {
		return sum, err
	}

	logFile, err := logging.OpenRunLog(cfg.Target, sum.StartedAt)
	if err != nil {
		return sum, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	defer func() { _ = logFile.Close() }()
	sum.LogFile = logFile.Name()

	var w io.Writer = logFile
	if r.opts.Console != nil {
		w = io.MultiWriter(logFile, r.opts.Console)
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: w})
	if err != nil {
		return sum, fmt.Errorf("%w: %w", model.ErrConfig, err)
	}
	log = log.With("run_id", sum.RunID)

	log.Info("export started",
		"repository", cfg.Repository.Name,
		"user", cfg.Repository.User,
		"source", cfg.Source,
		"target", cfg.Target,
		"versions", cfg.Versions,
	)
	defer func() {
		sum.FinishedAt = r.opts.Now()
		sum.Duration = sum.FinishedAt.Sub(sum.StartedAt)
		r.finish(log, cfg, sum, err)
	}()

	root, err := r.prepare(ctx, sess, cfg, sum, log)
	if err != nil {
		return sum, err
	}

	exp := export.New(sess, export.Options{
		TargetRoot:  cfg.Target,
		AllVersions: cfg.Versions,
		PageSize:    cfg.PageSize,
		Logger:      log,
		Metrics:     r.opts.Metrics,
	})
	sum.Counters, err = exp.Walk(ctx, root)
	if err != nil {
		return sum, err
	}
	return sum, nil
}

// Count connects, checks the source folder and reports the expected
// totals without exporting anything.
func (r *Runner) Count(ctx context.Context, cfg *config.Config) (sum *Summary, err error) {
	if err := config.ValidateCount(cfg); err != nil {
		return nil, err
	}

	sum = r.newSummary(cfg)
	sum.Target = ""

	sess, err := r.connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := sess.Release(); rerr != nil && err == nil {
			err = fmt.Errorf("release session: %w", rerr)
		}
	}()

	log := logging.Discard()
	if r.opts.Console != nil {
		log, err = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: r.opts.Console})
		if err != nil {
			return sum, fmt.Errorf("%w: %w", model.ErrConfig, err)
		}
		log = log.With("run_id", sum.RunID)
	}

	_, err = r.prepare(ctx, sess, cfg, sum, log)
	sum.FinishedAt = r.opts.Now()
	sum.Duration = sum.FinishedAt.Sub(sum.StartedAt)
	return sum, err
}

func (r *Runner) newSummary(cfg *config.Config) *Summary {
	return &Summary{
		RunID:      r.opts.NewRunID(),
		Repository: cfg.Repository.Name,
		Source:     cfg.Source,
		Target:     cfg.Target,
		Versions:   cfg.Versions,
		StartedAt:  r.opts.Now(),
	}
}

func (r *Runner) connect(ctx context.Context, cfg *config.Config) (repository.Session, error) {
	if r.opts.Connector == nil {
		return nil, errors.New("no repository connector configured")
	}
	sess, err := r.opts.Connector.Connect(ctx, repository.Credentials{
		Repository: cfg.Repository.Name,
		User:       cfg.Repository.User,
		Password:   cfg.Repository.Password,
	})
	if err != nil {
		if !errors.Is(err, model.ErrAuth) {
			err = fmt.Errorf("%w: %w", model.ErrAuth, err)
		}
		return nil, err
	}
	return sess, nil
}

// prepare checks that the source folder exists, records the expected
// totals and resolves the root folder.
func (r *Runner) prepare(ctx context.Context, sess repository.Session, cfg *config.Config, sum *Summary, log *slog.Logger) (*model.Node, error) {
	count := func(kind repository.CountKind, allVersions bool) (int, error) {
		r.opts.Metrics.Queries("count", 1)
		n, err := sess.Count(ctx, repository.CountQuery{Kind: kind, Path: cfg.Source, AllVersions: allVersions})
		if err != nil && !errors.Is(err, model.ErrQuery) {
			err = fmt.Errorf("%w: %w", model.ErrQuery, err)
		}
		return n, err
	}

	n, err := count(repository.CountFolderAtPath, false)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		log.Error("source folder not found", "source", cfg.Source)
		return nil, fmt.Errorf("%w: folder %s does not exist in repository %s", model.ErrPrecondition, cfg.Source, cfg.Repository.Name)
	}

	if sum.Expected.Folders, err = count(repository.CountFoldersUnder, false); err != nil {
		return nil, err
	}
	if sum.Expected.Documents, err = count(repository.CountDocumentsUnder, cfg.Versions); err != nil {
		return nil, err
	}
	log.Info("expected totals",
		"folders", sum.Expected.Folders,
		"documents", sum.Expected.Documents,
	)

	root, err := sess.GetObjectByPath(ctx, cfg.Source)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", model.ErrPrecondition, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", model.ErrQuery, cfg.Source, err)
	}
	return root, nil
}

// finish writes the closing log records and the metrics file.
func (r *Runner) finish(log *slog.Logger, cfg *config.Config, sum *Summary, runErr error) {
	c := sum.Counters
	attrs := []any{
		"folders", c.Folders,
		"documents", c.Documents,
		"exported", c.Exported,
		"skipped", c.Skipped,
		"failed", c.Failed,
		"bytes", c.Bytes,
		"duration", sum.Duration.String(),
	}
	if runErr != nil {
		log.Error("export aborted", append(attrs, "error", runErr.Error())...)
	} else {
		log.Info("export finished", attrs...)
	}

	r.opts.Metrics.RunFinished(sum.Duration, sum.FinishedAt)
	if cfg.MetricsFile != "" {
		if err := r.opts.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("could not write metrics", "file", cfg.MetricsFile, "error", err.Error())
		}
	}
	log.Info("End")
}

// checkTarget verifies the target is an existing directory.
func checkTarget(target string) error {
	info, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: target directory %s does not exist", model.ErrConfig, target)
	}
	if err != nil {
		return fmt.Errorf("%w: target directory %s: %w", model.ErrConfig, target, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: target %s is not a directory", model.ErrConfig, target)
	}
	return nil
}
