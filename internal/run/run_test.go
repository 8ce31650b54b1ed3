package run

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/deepexport/internal/config"
	"github.com/shinji-kodama/deepexport/internal/metrics"
	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository/repotest"
)

var start = time.Date(2019, 3, 14, 9, 26, 53, 0, time.UTC)

// newRepo builds /Temp with a sub folder, one exportable document, one
// parked document and an older version.
func newRepo() *repotest.Repo {
	repo := repotest.New("dmadmin", "secret")
	temp := repo.MustFolder("/Temp")
	sub := repo.MustFolder("/Temp/Reports")
	repo.MustDocument(temp, "Readme", "txt", []byte("hello"))
	v1 := repo.MustDocument(sub, "Q1", "pdf", []byte("first"))
	repo.MustVersion(v1, "1.1", []byte("second"))
	repo.MustDocument(sub, "Old", "pdf", []byte("x"), repotest.WithParkedState(1))
	return repo
}

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Repository: config.RepositoryConfig{
			Name: "docbase", User: "dmadmin", Password: "secret", DSN: "unused",
		},
		Source: "/Temp/",
		Target: t.TempDir(),
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func newRunner(repo *repotest.Repo, opts Options) *Runner {
	opts.Connector = repo
	opts.Now = func() time.Time { return start }
	opts.NewRunID = func() string { return "run-1" }
	return New(opts)
}

func TestRun_Success(t *testing.T) {
	repo := newRepo()
	cfg := newConfig(t)

	sum, err := newRunner(repo, Options{}).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, "run-1", sum.RunID)
	assert.Equal(t, "/Temp", sum.Source)
	assert.Equal(t, model.Totals{Folders: 1, Documents: 3}, sum.Expected)
	assert.Equal(t, 1, sum.Counters.Folders)
	assert.Equal(t, 3, sum.Counters.Documents)
	assert.Equal(t, 2, sum.Counters.Exported)
	assert.Equal(t, 1, sum.Counters.Skipped)

	assert.FileExists(t, filepath.Join(cfg.Target, "Temp", "Readme.txt"))
	assert.FileExists(t, filepath.Join(cfg.Target, "Temp", "Reports", "Q1.pdf"))
	assert.NoFileExists(t, filepath.Join(cfg.Target, "Temp", "Reports", "Old.pdf"))

	assert.Equal(t, 1, repo.Sessions)
	assert.Equal(t, 1, repo.Releases)
	assert.Zero(t, repo.OpenCursors)

	wantLog := filepath.Join(cfg.Target, "DeepExport_2019-03-14_09-26-53.log")
	assert.Equal(t, wantLog, sum.LogFile)
	data, err := os.ReadFile(wantLog)
	require.NoError(t, err)
	logText := string(data)
	assert.Contains(t, logText, "export started")
	assert.Contains(t, logText, "expected totals")
	assert.Contains(t, logText, "run_id=run-1")
	assert.Contains(t, logText, "reason=parked-content")
	assert.Contains(t, logText, "export finished")
	assert.Contains(t, logText, "msg=End")
}

func TestRun_Versions(t *testing.T) {
	repo := newRepo()
	cfg := newConfig(t)
	cfg.Versions = true

	sum, err := newRunner(repo, Options{}).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Expected.Documents, "pre-count includes every version")
	assert.Equal(t, 4, sum.Counters.Documents)
	assert.FileExists(t, filepath.Join(cfg.Target, "Temp", "Reports", "Q1-v1.0.pdf"))
	assert.FileExists(t, filepath.Join(cfg.Target, "Temp", "Reports", "Q1-v1.1.pdf"))
}

func TestRun_FatalErrors(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(t *testing.T, repo *repotest.Repo, cfg *config.Config)
		wantErr      error
		wantSessions int
	}{
		{
			name:    "missing setting",
			setup:   func(t *testing.T, _ *repotest.Repo, cfg *config.Config) { cfg.Repository.User = "" },
			wantErr: model.ErrConfig,
		},
		{
			name:    "bad credentials",
			setup:   func(t *testing.T, _ *repotest.Repo, cfg *config.Config) { cfg.Repository.Password = "wrong" },
			wantErr: model.ErrAuth,
		},
		{
			name: "target does not exist",
			setup: func(t *testing.T, _ *repotest.Repo, cfg *config.Config) {
				cfg.Target = filepath.Join(cfg.Target, "missing")
			},
			wantErr:      model.ErrConfig,
			wantSessions: 1,
		},
		{
			name: "target is a file",
			setup: func(t *testing.T, _ *repotest.Repo, cfg *config.Config) {
				file := filepath.Join(cfg.Target, "file")
				require.NoError(t, os.WriteFile(file, nil, 0o644))
				cfg.Target = file
			},
			wantErr:      model.ErrConfig,
			wantSessions: 1,
		},
		{
			name:         "source folder missing",
			setup:        func(t *testing.T, _ *repotest.Repo, cfg *config.Config) { cfg.Source = "/Nope" },
			wantErr:      model.ErrPrecondition,
			wantSessions: 1,
		},
		{
			name: "count query fails",
			setup: func(t *testing.T, repo *repotest.Repo, _ *config.Config) {
				repo.CountErr = errors.New("DM_QUERY_E_CURSOR_ERROR")
			},
			wantErr:      model.ErrQuery,
			wantSessions: 1,
		},
		{
			name: "children query fails",
			setup: func(t *testing.T, repo *repotest.Repo, _ *config.Config) {
				repo.SelectErr = errors.New("DM_QUERY_E_CURSOR_ERROR")
			},
			wantErr:      model.ErrQuery,
			wantSessions: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo()
			cfg := newConfig(t)
			tt.setup(t, repo, cfg)

			_, err := newRunner(repo, Options{}).Run(context.Background(), cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantSessions, repo.Sessions)
			assert.Equal(t, tt.wantSessions, repo.Releases, "session released exactly once")
		})
	}
}

func TestRun_SourceMissingIsLogged(t *testing.T) {
	repo := newRepo()
	cfg := newConfig(t)
	cfg.Source = "/Nope"

	sum, err := newRunner(repo, Options{}).Run(context.Background(), cfg)
	require.ErrorIs(t, err, model.ErrPrecondition)
	require.NotNil(t, sum)

	data, err := os.ReadFile(sum.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "source folder not found")
	assert.Contains(t, string(data), "export aborted")
}

func TestRun_ConsoleAndMetrics(t *testing.T) {
	repo := newRepo()
	cfg := newConfig(t)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "deepexport.prom")

	m, err := metrics.NewCollector("", nil)
	require.NoError(t, err)
	var console bytes.Buffer

	_, err = newRunner(repo, Options{Console: &console, Metrics: m}).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Contains(t, console.String(), "export finished")

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deepexport_documents_exported_total 2")
	assert.Contains(t, string(data), `deepexport_repository_queries_total{kind="count"} 3`)
}

func TestCount(t *testing.T) {
	repo := newRepo()
	cfg := newConfig(t)
	cfg.Target = ""

	sum, err := newRunner(repo, Options{}).Count(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, model.Totals{Folders: 1, Documents: 3}, sum.Expected)
	assert.Equal(t, 1, repo.Releases)
	assert.Zero(t, repo.Selects, "count does not enumerate children")
}

func TestCount_SourceMissing(t *testing.T) {
	repo := newRepo()
	cfg := newConfig(t)
	cfg.Source = "/Nope"

	_, err := newRunner(repo, Options{}).Count(context.Background(), cfg)
	assert.ErrorIs(t, err, model.ErrPrecondition)
	assert.Equal(t, 1, repo.Releases)
}
