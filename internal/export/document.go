package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/naming"
)

// Result is the outcome of one ExportDocument call. Exactly one of
// Path, Skip or Err is set.
type Result struct {
	// Path is the file written.
	Path string

	// Bytes is the number of bytes written.
	Bytes int64

	// Skip is why no file was written.
	Skip model.SkipReason

	// Err is why writing failed.
	Err error
}

// Exported reports whether a file was written.
func (r Result) Exported() bool {
	return r.Path != "" && r.Err == nil
}

// ExportDocument materializes doc into dir, which must already exist.
//
// The checks run in this order, the first match wins:
// no content association, unresolvable content object, parked content,
// zero content size. Otherwise the content is streamed to a unique file
// name derived from the object name, the implicit version label (in
// all-versions mode) and the format extension. A write failure removes
// the partial file and is returned in Result.Err; it is never fatal.
func (e *Exporter) ExportDocument(ctx context.Context, dir string, doc *model.Node) Result {
	if doc.ContentID == "" {
		return e.skip(doc, model.SkipNoContentAssociation)
	}

	content, err := e.sess.GetContent(ctx, doc.ContentID)
	if errors.Is(err, model.ErrNotFound) {
		return e.skip(doc, model.SkipUnresolvableContent)
	}
	if err != nil {
		return e.fail(doc, "", fmt.Errorf("resolve content %s: %w", doc.ContentID, err))
	}
	if content.IsParked() {
		return e.skip(doc, model.SkipParkedContent)
	}
	if doc.ContentSize <= 0 {
		return e.skip(doc, model.SkipNoContent)
	}

	base := naming.BaseName(doc.Name, doc.ImplicitVersion(), e.opts.AllVersions)
	path, err := naming.UniquePath(dir, base, naming.Extension(doc.Format))
	if err != nil {
		return e.fail(doc, "", err)
	}

	n, err := e.writeContent(ctx, doc, path)
	if err != nil {
		return e.fail(doc, path, err)
	}

	e.log.Info("exported document",
		"name", doc.Name,
		"id", doc.ID,
		"file", path,
		"bytes", n,
	)
	e.metrics.DocumentExported(n)
	return Result{Path: path, Bytes: n}
}

// writeContent streams the document content into a newly created file.
// The file is opened with O_EXCL so an existing file is never
// overwritten; on any error the partial file is removed.
func (e *Exporter) writeContent(ctx context.Context, doc *model.Node, path string) (n int64, err error) {
	rc, err := e.sess.OpenContent(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("get content: %w", err)
	}
	defer func() { _ = rc.Close() }()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	n, err = io.Copy(f, rc)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write file: %w", err)
	}
	return n, nil
}

func (e *Exporter) skip(obj *model.Node, reason model.SkipReason) Result {
	e.log.Info("skipping object",
		"name", obj.Name,
		"id", obj.ID,
		"reason", reason.String(),
		"detail", reason.Message(),
	)
	e.metrics.Skipped(reason)
	return Result{Skip: reason}
}

func (e *Exporter) fail(doc *model.Node, path string, err error) Result {
	e.log.Error("could not export document",
		"name", doc.Name,
		"id", doc.ID,
		"file", path,
		"error", err.Error(),
	)
	e.metrics.DocumentFailed()
	return Result{Err: err}
}
