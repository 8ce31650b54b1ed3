// Package repotest provides an in-memory repository for tests.
//
// It implements repository.Connector and repository.Session with the same
// observable behavior as the SQL backend: children ordered by object id,
// a result set cap, current-version filtering, recursive counts by path,
// and content streaming. It also records how it was used (open cursors,
// select calls, releases) so tests can assert resource handling.
//
// Usage:
//
//	repo := repotest.New("dmadmin", "secret")
//	a := repo.MustFolder("/A")
//	repo.MustDocument(a, "Report", "pdf", []byte("%PDF-1.4"))
package repotest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository"
)

// Object id prefixes follow the usual repository type tags.
const (
	prefixDocument = "09"
	prefixFolder   = "0b"
	prefixOther    = "08"
	prefixContent  = "06"
)

type object struct {
	node     model.Node
	parentID string
	current  bool
	data     []byte
}

type content struct {
	c       model.Content
	missing bool
}

// Repo is an in-memory repository.
type Repo struct {
	// User and Password are the only accepted credentials.
	User     string
	Password string

	// MaxResultSet rejects any Select that could return more rows than
	// this. Zero disables the cap.
	MaxResultSet int

	// SelectErr, when set, makes every Select fail.
	SelectErr error

	// CountErr, when set, makes every Count fail.
	CountErr error

	// OpenErr maps object ids to errors returned by OpenContent.
	OpenErr map[string]error

	objects  map[string]*object
	byPath   map[string]string
	contents map[string]*content
	seq      int

	// Stats.
	Selects     int
	OpenCursors int
	MaxOpen     int
	Releases    int
	Sessions    int
}

// New creates an empty repository accepting the given credentials.
func New(user, password string) *Repo {
	return &Repo{
		User:     user,
		Password: password,
		OpenErr:  make(map[string]error),
		objects:  make(map[string]*object),
		byPath:   make(map[string]string),
		contents: make(map[string]*content),
	}
}

func (r *Repo) nextID(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s%014x", prefix, r.seq)
}

// MustFolder creates the folder at path and any missing ancestors and
// returns its node. Creating an existing path returns the existing node.
func (r *Repo) MustFolder(path string) *model.Node {
	path = "/" + strings.Trim(path, "/")
	if id, ok := r.byPath[path]; ok {
		return &r.objects[id].node
	}

	parentID := ""
	if i := strings.LastIndex(path, "/"); i > 0 {
		parentID = r.MustFolder(path[:i]).ID
	}

	name := path[strings.LastIndex(path, "/")+1:]
	obj := &object{
		node: model.Node{
			ID:         r.nextID(prefixFolder),
			Name:       name,
			Type:       model.NodeFolder,
			FolderPath: path,
		},
		parentID: parentID,
		current:  true,
	}
	r.objects[obj.node.ID] = obj
	r.byPath[path] = obj.node.ID
	return &obj.node
}

// DocumentOption customizes a document created by MustDocument.
type DocumentOption func(o *object, c *content)

// WithParkedState sets the parked state of the document's content object.
func WithParkedState(state int) DocumentOption {
	return func(_ *object, c *content) {
		if c != nil {
			c.c.ParkedState = state
		}
	}
}

// WithoutContent creates the document with no content association.
func WithoutContent() DocumentOption {
	return func(o *object, _ *content) {
		o.node.ContentID = ""
	}
}

// WithUnresolvableContent points the document at a content id that
// does not resolve.
func WithUnresolvableContent() DocumentOption {
	return func(_ *object, c *content) {
		if c != nil {
			c.missing = true
		}
	}
}

// WithContentSize overrides the content size recorded on the document.
func WithContentSize(size int64) DocumentOption {
	return func(o *object, _ *content) {
		o.node.ContentSize = size
	}
}

// WithVersion sets the implicit version label of the document.
func WithVersion(label string) DocumentOption {
	return func(o *object, _ *content) {
		o.node.VersionLabels = []string{label, "CURRENT"}
	}
}

// MustDocument creates a document in folder with the given content and
// returns its node. The document starts at version 1.0.
func (r *Repo) MustDocument(folder *model.Node, name, format string, data []byte, opts ...DocumentOption) *model.Node {
	contentID := r.nextID(prefixContent)
	c := &content{c: model.Content{ID: contentID, Size: int64(len(data))}}

	obj := &object{
		node: model.Node{
			ID:            r.nextID(prefixDocument),
			Name:          name,
			Type:          model.NodeDocument,
			ContentID:     contentID,
			ContentSize:   int64(len(data)),
			Format:        format,
			VersionLabels: []string{"1.0", "CURRENT"},
		},
		parentID: folder.ID,
		current:  true,
		data:     data,
	}

	for _, opt := range opts {
		opt(obj, c)
	}

	if obj.node.ContentID != "" && !c.missing {
		r.contents[contentID] = c
	}
	r.objects[obj.node.ID] = obj
	return &obj.node
}

// MustVersion checks in a new version of doc with the given label and
// content. The previous version stays in the folder but is no longer
// current.
func (r *Repo) MustVersion(doc *model.Node, label string, data []byte) *model.Node {
	prev, ok := r.objects[doc.ID]
	if !ok {
		panic(fmt.Sprintf("repotest: unknown document %s", doc.ID))
	}
	prev.current = false
	prev.node.VersionLabels = []string{prev.node.ImplicitVersion()}

	folder := r.objects[prev.parentID].node
	next := r.MustDocument(&folder, prev.node.Name, prev.node.Format, data, WithVersion(label))
	return next
}

// MustOther creates a sysobject that is neither a folder nor a document.
func (r *Repo) MustOther(folder *model.Node, name string) *model.Node {
	obj := &object{
		node: model.Node{
			ID:   r.nextID(prefixOther),
			Name: name,
			Type: model.NodeOther,
		},
		parentID: folder.ID,
		current:  true,
	}
	r.objects[obj.node.ID] = obj
	return &obj.node
}

// Connect implements repository.Connector.
func (r *Repo) Connect(ctx context.Context, cred repository.Credentials) (repository.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cred.User != r.User || cred.Password != r.Password {
		return nil, fmt.Errorf("%w: invalid credentials for %s@%s", model.ErrAuth, cred.User, cred.Repository)
	}
	r.Sessions++
	return &Session{repo: r}, nil
}

// Session is a repository.Session over a Repo.
type Session struct {
	repo     *Repo
	released bool
}

var _ repository.Session = (*Session)(nil)

// Select implements repository.Session.
func (s *Session) Select(ctx context.Context, q repository.Query) (repository.Cursor, error) {
	r := s.repo
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.Selects++
	if r.SelectErr != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrQuery, r.SelectErr)
	}
	if _, ok := r.objects[q.FolderID]; !ok {
		return nil, fmt.Errorf("%w: folder %s does not exist", model.ErrQuery, q.FolderID)
	}

	var ids []string
	for id, obj := range r.objects {
		if obj.parentID != q.FolderID {
			continue
		}
		if !q.AllVersions && !obj.current {
			continue
		}
		if q.After != "" && id <= q.After {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if r.MaxResultSet > 0 && (q.Limit == 0 || q.Limit > r.MaxResultSet) && len(ids) > r.MaxResultSet {
		return nil, fmt.Errorf("%w: result set exceeds %d rows", model.ErrQuery, r.MaxResultSet)
	}
	if q.Limit > 0 && len(ids) > q.Limit {
		ids = ids[:q.Limit]
	}

	r.OpenCursors++
	if r.OpenCursors > r.MaxOpen {
		r.MaxOpen = r.OpenCursors
	}
	return &cursor{repo: r, ids: ids}, nil
}

// Count implements repository.Session.
func (s *Session) Count(ctx context.Context, q repository.CountQuery) (int, error) {
	r := s.repo
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.CountErr != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrQuery, r.CountErr)
	}

	path := "/" + strings.Trim(q.Path, "/")
	n := 0
	switch q.Kind {
	case repository.CountFolderAtPath:
		if _, ok := r.byPath[path]; ok {
			n = 1
		}
	case repository.CountFoldersUnder:
		for p := range r.byPath {
			if strings.HasPrefix(p, path+"/") {
				n++
			}
		}
	case repository.CountDocumentsUnder:
		for _, obj := range r.objects {
			if !obj.node.IsDocument() || obj.node.ContentSize <= 0 {
				continue
			}
			if !q.AllVersions && !obj.current {
				continue
			}
			parent := r.objects[obj.parentID].node.FolderPath
			if parent == path || strings.HasPrefix(parent, path+"/") {
				n++
			}
		}
	default:
		return 0, fmt.Errorf("%w: unsupported count kind %d", model.ErrQuery, q.Kind)
	}
	return n, nil
}

// GetObject implements repository.Session.
func (s *Session) GetObject(ctx context.Context, id string) (*model.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	obj, ok := s.repo.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, model.ErrNotFound)
	}
	n := obj.node
	n.VersionLabels = append([]string(nil), obj.node.VersionLabels...)
	return &n, nil
}

// GetObjectByPath implements repository.Session.
func (s *Session) GetObjectByPath(ctx context.Context, path string) (*model.Node, error) {
	id, ok := s.repo.byPath["/"+strings.Trim(path, "/")]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", path, model.ErrNotFound)
	}
	return s.GetObject(ctx, id)
}

// GetContent implements repository.Session.
func (s *Session) GetContent(ctx context.Context, contentID string) (*model.Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, ok := s.repo.contents[contentID]
	if !ok {
		return nil, fmt.Errorf("content %s: %w", contentID, model.ErrNotFound)
	}
	out := c.c
	return &out, nil
}

// OpenContent implements repository.Session.
func (s *Session) OpenContent(ctx context.Context, node *model.Node) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.OpenErr[node.ID]; err != nil {
		return nil, err
	}
	obj, ok := s.repo.objects[node.ID]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", node.ID, model.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Release implements repository.Session.
func (s *Session) Release() error {
	if s.released {
		return errors.New("repotest: session released twice")
	}
	s.released = true
	s.repo.Releases++
	return nil
}

type cursor struct {
	repo   *Repo
	ids    []string
	pos    int
	closed bool
}

func (c *cursor) Next(ctx context.Context) (repository.Row, error) {
	if err := ctx.Err(); err != nil {
		return repository.Row{}, err
	}
	if c.closed || c.pos >= len(c.ids) {
		return repository.Row{}, io.EOF
	}
	row := repository.Row{ObjectID: c.ids[c.pos]}
	c.pos++
	return row, nil
}

func (c *cursor) Close() error {
	if !c.closed {
		c.closed = true
		c.repo.OpenCursors--
	}
	return nil
}
