package sqlrepo

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository"
	"github.com/shinji-kodama/deepexport/internal/repository/s3store"
)

const selectObject = `
SELECT s.r_object_id, s.object_name, s.r_object_type, s.r_folder_path,
       s.i_contents_id, s.r_full_content_size,
       COALESCE(f.dos_extension, s.a_content_type), s.r_version_label
FROM dm_sysobject s
LEFT JOIN dm_format f ON f.name = s.a_content_type
WHERE s.r_object_id = ?`

// Select runs one page of a children query, ordered by r_object_id.
func (s *Session) Select(ctx context.Context, q repository.Query) (repository.Cursor, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT r_object_id FROM dm_sysobject WHERE i_folder_id = ?`)
	args = append(args, q.FolderID)

	if !q.AllVersions {
		b.WriteString(` AND i_has_current = 1`)
	}
	if q.After != "" {
		b.WriteString(` AND r_object_id > ?`)
		args = append(args, q.After)
	}
	b.WriteString(` ORDER BY r_object_id`)
	if q.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, q.Limit)
	}

	rows, err := s.query(ctx, "children", b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: children of %s: %w", model.ErrQuery, q.FolderID, err)
	}
	return &cursor{rows: rows}, nil
}

// Count runs a count query.
func (s *Session) Count(ctx context.Context, q repository.CountQuery) (int, error) {
	path := normalizePath(q.Path)
	prefix := strings.TrimSuffix(path, "/") + "/"

	var (
		query string
		args  []any
	)
	switch q.Kind {
	case repository.CountFolderAtPath:
		query = `SELECT COUNT(*) FROM dm_sysobject
WHERE r_object_type = 'folder' AND r_folder_path = ?`
		args = []any{path}

	case repository.CountFoldersUnder:
		// substr instead of LIKE: SQLite's LIKE ignores case and both
		// engines would need "%" and "_" escaped.
		query = `SELECT COUNT(*) FROM dm_sysobject
WHERE r_object_type = 'folder' AND r_folder_path <> ?
  AND substr(r_folder_path, 1, ?) = ?`
		args = []any{path, utf8.RuneCountInString(prefix), prefix}

	case repository.CountDocumentsUnder:
		query = `SELECT COUNT(*) FROM dm_sysobject d
JOIN dm_sysobject f ON f.r_object_id = d.i_folder_id
WHERE d.r_object_type = 'document' AND d.r_full_content_size > 0
  AND (f.r_folder_path = ? OR substr(f.r_folder_path, 1, ?) = ?)`
		args = []any{path, utf8.RuneCountInString(prefix), prefix}
		if !q.AllVersions {
			query += ` AND d.i_has_current = 1`
		}

	default:
		return 0, fmt.Errorf("%w: unsupported count kind %d", model.ErrQuery, q.Kind)
	}

	var n int
	if err := s.scanRow(ctx, "count", query, args, &n); err != nil {
		return 0, fmt.Errorf("%w: count %s under %s: %w", model.ErrQuery, q.Kind, path, err)
	}
	return n, nil
}

// GetObject resolves an object id.
func (s *Session) GetObject(ctx context.Context, id string) (*model.Node, error) {
	var (
		n      model.Node
		typ    string
		labels string
	)
	err := s.scanRow(ctx, "object", selectObject, []any{id},
		&n.ID, &n.Name, &typ, &n.FolderPath, &n.ContentID, &n.ContentSize, &n.Format, &labels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("object %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: object %s: %w", model.ErrQuery, id, err)
	}

	n.Type = nodeType(typ)
	n.VersionLabels = splitLabels(labels)
	if !n.IsFolder() {
		n.FolderPath = ""
	}
	return &n, nil
}

// GetObjectByPath resolves a folder path.
func (s *Session) GetObjectByPath(ctx context.Context, path string) (*model.Node, error) {
	path = normalizePath(path)

	var id string
	err := s.scanRow(ctx, "object-by-path",
		`SELECT r_object_id FROM dm_sysobject WHERE r_object_type = 'folder' AND r_folder_path = ?`,
		[]any{path}, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", path, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: folder %s: %w", model.ErrQuery, path, err)
	}
	return s.GetObject(ctx, id)
}

// GetContent resolves a content object id.
func (s *Session) GetContent(ctx context.Context, contentID string) (*model.Content, error) {
	var c model.Content
	err := s.scanRow(ctx, "content",
		`SELECT r_object_id, i_parked_state, full_content_size FROM dmr_content WHERE r_object_id = ?`,
		[]any{contentID}, &c.ID, &c.ParkedState, &c.Size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %s: %w", contentID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: content %s: %w", model.ErrQuery, contentID, err)
	}
	return &c, nil
}

// OpenContent streams the document's primary content. Inline content
// is read from the row; otherwise storage_uri points at a file:// or
// s3:// location.
func (s *Session) OpenContent(ctx context.Context, node *model.Node) (io.ReadCloser, error) {
	var (
		uri  string
		blob []byte
	)
	err := s.scanRow(ctx, "content-stream",
		`SELECT storage_uri, content FROM dmr_content WHERE r_object_id = ?`,
		[]any{node.ContentID}, &uri, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %s: %w", node.ContentID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: content %s: %w", model.ErrQuery, node.ContentID, err)
	}

	if uri == "" {
		return io.NopCloser(bytes.NewReader(blob)), nil
	}
	return s.openURI(ctx, uri)
}

func (s *Session) openURI(ctx context.Context, uri string) (io.ReadCloser, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid storage uri %q: %w", uri, err)
	}

	switch u.Scheme {
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, fmt.Errorf("open content file: %w", err)
		}
		return f, nil

	case s3store.Scheme:
		if s.objects == nil {
			return nil, fmt.Errorf("content %s is in an object store but none is configured", uri)
		}
		bucket, key, err := s3store.ParseURI(uri)
		if err != nil {
			return nil, err
		}
		return s.objects.Open(ctx, bucket, key)

	default:
		return nil, fmt.Errorf("unsupported storage uri scheme %q", u.Scheme)
	}
}

// cursor adapts *sql.Rows to repository.Cursor.
type cursor struct {
	rows   *sql.Rows
	closed bool
}

func (c *cursor) Next(ctx context.Context) (repository.Row, error) {
	if err := ctx.Err(); err != nil {
		return repository.Row{}, err
	}
	if c.closed || !c.rows.Next() {
		if c.closed {
			return repository.Row{}, io.EOF
		}
		if err := c.rows.Err(); err != nil {
			return repository.Row{}, err
		}
		return repository.Row{}, io.EOF
	}

	var row repository.Row
	if err := c.rows.Scan(&row.ObjectID); err != nil {
		return repository.Row{}, err
	}
	return row, nil
}

func (c *cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rows.Close()
}

func nodeType(s string) model.NodeType {
	t, err := model.ParseNodeType(s)
	if err != nil {
		return model.NodeOther
	}
	return t
}

// splitLabels parses the comma separated r_version_label column.
func splitLabels(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	labels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}

func normalizePath(p string) string {
	return "/" + strings.Trim(strings.TrimSpace(p), "/")
}
