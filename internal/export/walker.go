package export

import (
	"context"
	"fmt"
	"os"

	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository"
)

// frame is one folder on the walk stack: its local directory and the
// paged reader over its children.
type frame struct {
	folder *model.Node
	dir    string
	rows   *repository.ChildReader
}

// Walk exports the tree rooted at root and returns the run counters.
//
// The walk keeps an explicit stack of folders instead of recursing. When
// a child folder is found it is pushed and fully processed before the
// remaining siblings, which gives the same depth-first pre-order as a
// recursive walk without growing the call stack on deep trees.
//
// The root folder's directory is created but the root is not counted in
// Counters.Folders. The returned counters are valid even when an error
// is returned; they cover everything processed up to the failure.
func (e *Exporter) Walk(ctx context.Context, root *model.Node) (model.Counters, error) {
	var c model.Counters

	if !root.IsFolder() {
		return c, fmt.Errorf("walk root %s is a %s, not a folder", root, root.Type)
	}

	top, err := e.enter(root)
	if err != nil {
		return c, err
	}
	stack := []*frame{top}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return c, err
		}

		cur := stack[len(stack)-1]
		ok, err := cur.rows.HasNext(ctx)
		if err != nil {
			return c, fmt.Errorf("list children of %s: %w", cur.folder.FolderPath, err)
		}
		if !ok {
			e.metrics.Queries("children", cur.rows.Pages())
			stack = stack[:len(stack)-1]
			continue
		}

		row, err := cur.rows.Next(ctx)
		if err != nil {
			return c, fmt.Errorf("list children of %s: %w", cur.folder.FolderPath, err)
		}

		obj, err := e.sess.GetObject(ctx, row.ObjectID)
		if err != nil {
			return c, fmt.Errorf("%w: resolve object %s: %w", model.ErrQuery, row.ObjectID, err)
		}

		switch obj.Type {
		case model.NodeFolder:
			c.Folders++
			e.metrics.FolderEntered()

			child, err := e.enter(obj)
			if err != nil {
				return c, err
			}
			stack = append(stack, child)

		case model.NodeDocument:
			c.Documents++
			e.metrics.DocumentAttempted()

			res := e.ExportDocument(ctx, cur.dir, obj)
			switch {
			case res.Exported():
				c.Exported++
				c.Bytes += res.Bytes
			case res.Skip != "":
				c.Skipped++
			default:
				c.Failed++
			}

		default:
			e.skip(obj, model.SkipNotADocument)
			c.Skipped++
		}
	}

	return c, nil
}

// enter creates the local directory for folder and opens its children
// reader. Directory creation is idempotent.
func (e *Exporter) enter(folder *model.Node) (*frame, error) {
	dir, err := LocalDir(e.opts.TargetRoot, folder.FolderPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", folder.FolderPath, err)
	}

	e.log.Info("exporting folder", "path", folder.FolderPath, "id", folder.ID, "dir", dir)

	return &frame{
		folder: folder,
		dir:    dir,
		rows:   repository.Children(e.sess, folder.ID, e.opts.AllVersions, e.opts.PageSize),
	}, nil
}
