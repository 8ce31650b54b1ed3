// Package repository defines the contracts between the export engine and
// the content repository it reads from.
//
// The engine never talks to a concrete backend. It receives a Session
// from a Connector and uses it for four things: running row queries,
// running count queries, resolving object ids and paths to nodes, and
// streaming document content. Implementations live in sub-packages:
// sqlrepo (SQLite / PostgreSQL) and repotest (in-memory, for tests).
//
// A Session is used read-only and from a single goroutine.
package repository

import (
	"context"
	"io"

	"github.com/shinji-kodama/deepexport/internal/model"
)

// Credentials identify the repository and the user connecting to it.
type Credentials struct {
	// Repository is the repository (docbase) name.
	Repository string

	// User is the login name.
	User string

	// Password is the clear-text secret.
	Password string
}

// Connector establishes sessions. Connect returns an error wrapping
// model.ErrAuth when the credentials are rejected.
type Connector interface {
	Connect(ctx context.Context, cred Credentials) (Session, error)
}

// Row is one result row of a children query.
type Row struct {
	// ObjectID is the identifier of the matched object.
	ObjectID string
}

// Cursor is a forward-only result set over rows. Next returns io.EOF
// once drained. Close releases the underlying native cursor and is safe
// to call more than once.
type Cursor interface {
	Next(ctx context.Context) (Row, error)
	Close() error
}

// Query selects the direct children of a folder.
//
// Results are ordered by object id, which makes the id usable as a
// continuation key: a query with After set returns only rows whose id
// sorts strictly after it.
type Query struct {
	// FolderID is the identifier of the parent folder.
	FolderID string

	// AllVersions includes every version of versionable objects instead
	// of only the current one.
	AllVersions bool

	// After, when non-empty, restricts results to ids greater than After.
	After string

	// Limit caps the number of rows. Zero means no limit.
	Limit int
}

// CountKind selects what a CountQuery counts.
type CountKind int

const (
	// CountFolderAtPath counts folders whose path equals Path exactly.
	// It is used to check that the export source exists.
	CountFolderAtPath CountKind = iota

	// CountFoldersUnder counts folders below Path, recursively,
	// excluding the folder at Path itself.
	CountFoldersUnder

	// CountDocumentsUnder counts documents with content (size > 0)
	// anywhere below Path.
	CountDocumentsUnder
)

// String returns a short name for logs.
func (k CountKind) String() string {
	switch k {
	case CountFolderAtPath:
		return "folder-at-path"
	case CountFoldersUnder:
		return "folders-under"
	case CountDocumentsUnder:
		return "documents-under"
	default:
		return "unknown"
	}
}

// CountQuery is a scalar count query.
type CountQuery struct {
	Kind CountKind

	// Path is a repository folder path such as "/Temp".
	Path string

	// AllVersions counts every version of documents. Only meaningful
	// for CountDocumentsUnder.
	AllVersions bool
}

// Session is an authenticated repository connection.
//
// Select and Count return errors wrapping model.ErrQuery. GetObject and
// GetObjectByPath return errors wrapping model.ErrNotFound when nothing
// matches. GetContent returns model.ErrNotFound when the content id does
// not resolve.
type Session interface {
	// Select runs a children query.
	Select(ctx context.Context, q Query) (Cursor, error)

	// Count runs a count query.
	Count(ctx context.Context, q CountQuery) (int, error)

	// GetObject resolves an object id to a full node.
	GetObject(ctx context.Context, id string) (*model.Node, error)

	// GetObjectByPath resolves a folder path to its folder node.
	GetObjectByPath(ctx context.Context, path string) (*model.Node, error)

	// GetContent resolves a content object id.
	GetContent(ctx context.Context, contentID string) (*model.Content, error)

	// OpenContent streams the primary content of a document.
	OpenContent(ctx context.Context, node *model.Node) (io.ReadCloser, error)

	// Release ends the session. It must be called exactly once.
	Release() error
}
