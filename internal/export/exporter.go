package export

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/shinji-kodama/deepexport/internal/logging"
	"github.com/shinji-kodama/deepexport/internal/metrics"
	"github.com/shinji-kodama/deepexport/internal/repository"
)

// Options configures an Exporter.
type Options struct {
	// TargetRoot is the local directory the repository tree is mirrored into.
	TargetRoot string

	// AllVersions exports every version of each document and appends the
	// implicit version label to file names.
	AllVersions bool

	// PageSize bounds the rows fetched per children query.
	PageSize int

	// Logger receives one record per structural event. Defaults to a
	// discarding logger.
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Collector
}

// Exporter exports folders and documents from one repository session.
// It is not safe for concurrent use.
type Exporter struct {
	sess    repository.Session
	opts    Options
	log     *slog.Logger
	metrics *metrics.Collector
}

// New creates an Exporter reading from sess.
func New(sess repository.Session, opts Options) *Exporter {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Exporter{
		sess:    sess,
		opts:    opts,
		log:     log,
		metrics: opts.Metrics,
	}
}

// LocalDir maps a repository folder path to its directory under root.
// The result must stay inside root; paths with ".." segments that would
// climb out are rejected.
func LocalDir(root, folderPath string) (string, error) {
	cleanRoot := filepath.Clean(root)
	dir := filepath.Join(cleanRoot, filepath.FromSlash(folderPath))

	rel, err := filepath.Rel(cleanRoot, dir)
	if err != nil {
		return "", fmt.Errorf("map folder %q: %w", folderPath, err)
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("folder path %q escapes target %s", folderPath, root)
	}
	return dir, nil
}
