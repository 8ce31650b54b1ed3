package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// schema is the DDL shared by both drivers. {{blob}} is replaced with
// the driver's binary column type.
const schema = `
CREATE TABLE IF NOT EXISTS dm_user (
        user_name     TEXT PRIMARY KEY,
        password_hash TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dm_format (
        name          TEXT PRIMARY KEY,
        dos_extension TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dm_sysobject (
        r_object_id         TEXT PRIMARY KEY,
        object_name         TEXT NOT NULL,
        r_object_type       TEXT NOT NULL,
        i_folder_id         TEXT NOT NULL DEFAULT '',
        r_folder_path       TEXT NOT NULL DEFAULT '',
        i_chronicle_id      TEXT NOT NULL DEFAULT '',
        r_version_label     TEXT NOT NULL DEFAULT '',
        i_has_current       INTEGER NOT NULL DEFAULT 1,
        a_content_type      TEXT NOT NULL DEFAULT '',
        r_full_content_size BIGINT NOT NULL DEFAULT 0,
        i_contents_id       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS dmr_content (
        r_object_id       TEXT PRIMARY KEY,
        i_parked_state    INTEGER NOT NULL DEFAULT 0,
        full_content_size BIGINT NOT NULL DEFAULT 0,
        storage_uri       TEXT NOT NULL DEFAULT '',
        content           {{blob}}
);

CREATE INDEX IF NOT EXISTS idx_sysobject_folder ON dm_sysobject(i_folder_id, r_object_id);
CREATE INDEX IF NOT EXISTS idx_sysobject_path ON dm_sysobject(r_folder_path);
`

// Object id prefixes by type.
const (
	prefixDocument = "09"
	prefixFolder   = "0b"
	prefixOther    = "08"
	prefixContent  = "06"
)

// Loader creates the schema and inserts fixture objects. It is used by
// tests and to seed local databases.
type Loader struct {
	db     *sql.DB
	driver string
	seq    int
}

// NewLoader returns a Loader writing to db.
func NewLoader(db *sql.DB, driver string) (*Loader, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	return &Loader{db: db, driver: driver}, nil
}

// CreateSchema creates the repository tables if they do not exist.
func (l *Loader) CreateSchema(ctx context.Context) error {
	blob := "BLOB"
	if l.driver == DriverPostgres {
		blob = "BYTEA"
	}
	ddl := strings.ReplaceAll(schema, "{{blob}}", blob)

	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

func (l *Loader) exec(ctx context.Context, query string, args ...any) error {
	_, err := l.db.ExecContext(ctx, Rebind(l.driver, query), args...)
	return err
}

func (l *Loader) nextID(prefix string) string {
	l.seq++
	return fmt.Sprintf("%s%014x", prefix, l.seq)
}

// AddUser stores a user with a bcrypt hash of password.
func (l *Loader) AddUser(ctx context.Context, name, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := l.exec(ctx, `INSERT INTO dm_user(user_name, password_hash) VALUES(?, ?)`, name, string(hash)); err != nil {
		return fmt.Errorf("insert user %s: %w", name, err)
	}
	return nil
}

// AddFormat maps a format name to its DOS extension.
func (l *Loader) AddFormat(ctx context.Context, name, extension string) error {
	if err := l.exec(ctx, `INSERT INTO dm_format(name, dos_extension) VALUES(?, ?)`, name, extension); err != nil {
		return fmt.Errorf("insert format %s: %w", name, err)
	}
	return nil
}

// AddFolder creates the folder at path, and any missing ancestors, and
// returns its object id.
func (l *Loader) AddFolder(ctx context.Context, path string) (string, error) {
	path = normalizePath(path)

	var id string
	err := l.db.QueryRowContext(ctx,
		Rebind(l.driver, `SELECT r_object_id FROM dm_sysobject WHERE r_object_type = 'folder' AND r_folder_path = ?`),
		path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("look up folder %s: %w", path, err)
	}

	parentID := ""
	i := strings.LastIndex(path, "/")
	if i > 0 {
		if parentID, err = l.AddFolder(ctx, path[:i]); err != nil {
			return "", err
		}
	}

	id = l.nextID(prefixFolder)
	err = l.exec(ctx, `INSERT INTO dm_sysobject(r_object_id, object_name, r_object_type, i_folder_id, r_folder_path)
VALUES(?, ?, 'folder', ?, ?)`, id, path[i+1:], parentID, path)
	if err != nil {
		return "", fmt.Errorf("insert folder %s: %w", path, err)
	}
	return id, nil
}

// Document describes a document fixture.
type Document struct {
	Name string

	// Format is the a_content_type value. When no dm_format row maps
	// it, it is used as the extension directly.
	Format string

	// Data is stored inline unless StorageURI is set.
	Data []byte

	// Size overrides the recorded content size. Defaults to len(Data).
	Size *int64

	// StorageURI points at file:// or s3:// content.
	StorageURI string

	// Version is the implicit version label. Defaults to "1.0".
	Version string

	// ChronicleID groups versions of one document. Defaults to the
	// object id of the first version.
	ChronicleID string

	// NonCurrent marks an older version.
	NonCurrent bool

	ParkedState int

	// NoContent omits the content association.
	NoContent bool

	// DanglingContent sets a content id that has no dmr_content row.
	DanglingContent bool
}

// AddDocument inserts a document into the folder at folderPath and
// returns its object id.
func (l *Loader) AddDocument(ctx context.Context, folderPath string, d Document) (string, error) {
	folderID, err := l.AddFolder(ctx, folderPath)
	if err != nil {
		return "", err
	}

	id := l.nextID(prefixDocument)
	chronicle := d.ChronicleID
	if chronicle == "" {
		chronicle = id
	}
	version := d.Version
	if version == "" {
		version = "1.0"
	}
	labels := version
	current := 0
	if !d.NonCurrent {
		labels += ",CURRENT"
		current = 1
	}
	size := int64(len(d.Data))
	if d.Size != nil {
		size = *d.Size
	}

	contentID := ""
	if !d.NoContent {
		contentID = l.nextID(prefixContent)
		if !d.DanglingContent {
			var blob []byte
			if d.StorageURI == "" {
				blob = d.Data
			}
			err := l.exec(ctx, `INSERT INTO dmr_content(r_object_id, i_parked_state, full_content_size, storage_uri, content)
VALUES(?, ?, ?, ?, ?)`, contentID, d.ParkedState, size, d.StorageURI, blob)
			if err != nil {
				return "", fmt.Errorf("insert content for %s: %w", d.Name, err)
			}
		}
	}

	err = l.exec(ctx, `INSERT INTO dm_sysobject(r_object_id, object_name, r_object_type, i_folder_id,
  i_chronicle_id, r_version_label, i_has_current, a_content_type, r_full_content_size, i_contents_id)
VALUES(?, ?, 'document', ?, ?, ?, ?, ?, ?, ?)`,
		id, d.Name, folderID, chronicle, labels, current, d.Format, size, contentID)
	if err != nil {
		return "", fmt.Errorf("insert document %s: %w", d.Name, err)
	}
	return id, nil
}

// AddOther inserts a sysobject that is neither a folder nor a document.
func (l *Loader) AddOther(ctx context.Context, folderPath, name, objectType string) (string, error) {
	folderID, err := l.AddFolder(ctx, folderPath)
	if err != nil {
		return "", err
	}
	id := l.nextID(prefixOther)
	err = l.exec(ctx, `INSERT INTO dm_sysobject(r_object_id, object_name, r_object_type, i_folder_id)
VALUES(?, ?, ?, ?)`, id, name, objectType, folderID)
	if err != nil {
		return "", fmt.Errorf("insert object %s: %w", name, err)
	}
	return id, nil
}
