package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/deepexport/internal/model"
)

// TestCollector_Counts verifies each recording method moves its counter.
func TestCollector_Counts(t *testing.T) {
	c, err := NewCollector("", nil)
	require.NoError(t, err)

	c.FolderEntered()
	c.FolderEntered()
	c.DocumentAttempted()
	c.DocumentAttempted()
	c.DocumentAttempted()
	c.DocumentExported(100)
	c.DocumentExported(23)
	c.DocumentFailed()
	c.Skipped(model.SkipParkedContent)
	c.Skipped(model.SkipParkedContent)
	c.Skipped(model.SkipNotADocument)
	c.Queries("children", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.folders))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.documents))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.exported))
	assert.Equal(t, 123.0, testutil.ToFloat64(c.bytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.failed))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.skipped.WithLabelValues("parked-content")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skipped.WithLabelValues("not-a-document")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.queries.WithLabelValues("children")))
}

// TestCollector_Nil verifies a nil collector is a silent no-op.
func TestCollector_Nil(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.FolderEntered()
		c.DocumentAttempted()
		c.DocumentExported(1)
		c.DocumentFailed()
		c.Skipped(model.SkipNoContent)
		c.Queries("count", 1)
		c.RunFinished(time.Second, time.Now())
	})
	assert.Nil(t, c.Registry())
	assert.NoError(t, c.WriteTextfile(filepath.Join(t.TempDir(), "never.prom")))
}

// TestCollector_DuplicateRegistration verifies registering twice on one
// registry is reported.
func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector("deepexport", reg)
	require.NoError(t, err)

	_, err = NewCollector("deepexport", reg)
	assert.Error(t, err)
}

// TestCollector_WriteTextfile verifies the exposition file contains the
// namespaced metrics.
func TestCollector_WriteTextfile(t *testing.T) {
	c, err := NewCollector("deepexport", nil)
	require.NoError(t, err)

	c.DocumentExported(42)
	c.RunFinished(1500*time.Millisecond, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "deepexport.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "deepexport_documents_exported_total 1")
	assert.Contains(t, out, "deepexport_exported_bytes_total 42")
	assert.Contains(t, out, "deepexport_run_duration_seconds 1.5")
	assert.Contains(t, out, "deepexport_last_run_timestamp_seconds")
}
