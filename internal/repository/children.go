package repository

import (
	"context"

	"github.com/shinji-kodama/deepexport/internal/pager"
)

// ChildReader is the paged sequence of a folder's children.
type ChildReader = pager.Reader[Row, string]

// Children returns a lazily paged reader over the direct children of a
// folder. Each page is one Select with Limit = pageSize, continued after
// the last object id of the previous page.
func Children(sess Session, folderID string, allVersions bool, pageSize int) *ChildReader {
	return pager.New(pager.Config[Row, string]{
		PageSize: pageSize,
		Fetch: func(ctx context.Context, after string, first bool, limit int) (pager.Cursor[Row], error) {
			q := Query{
				FolderID:    folderID,
				AllVersions: allVersions,
				Limit:       limit,
			}
			if !first {
				q.After = after
			}
			return sess.Select(ctx, q)
		},
		Key: func(r Row) string { return r.ObjectID },
	})
}
