// Package sqlrepo implements the repository contracts on top of a SQL
// database that mirrors the repository's object tables.
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, no cgo) and
// "postgres" (github.com/lib/pq). Children are read with keyset
// pagination on r_object_id, so a page query never depends on the size
// of the folder. Users authenticate against bcrypt hashes in dm_user.
//
// Document content is stored inline (BLOB), in a local file (file://)
// or in an object store (s3://bucket/key).
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/shinji-kodama/deepexport/internal/logging"
	"github.com/shinji-kodama/deepexport/internal/model"
	"github.com/shinji-kodama/deepexport/internal/repository"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ObjectOpener streams objects from an object store. *s3store.Store
// implements it.
type ObjectOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Connector opens sessions against one database.
type Connector struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// DSN is the driver specific data source name. For sqlite it is a
	// file path.
	DSN string

	// QueriesPerSecond throttles statements issued by a session. Zero
	// or negative disables throttling.
	QueriesPerSecond float64

	// Objects serves s3:// content. Optional.
	Objects ObjectOpener

	// Logger receives debug records for each statement. Optional.
	Logger *slog.Logger
}

var _ repository.Connector = (*Connector)(nil)

// NormalizeDriver maps driver aliases to a supported driver name.
func NormalizeDriver(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pq":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported repository driver %q (valid: sqlite, postgres)", name)
	}
}

// Open opens and pings the database.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	driver, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("repository dsn cannot be empty")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	return db, nil
}

// Connect opens the database and checks the user's password. Any
// failure to establish the session wraps model.ErrAuth.
func (c *Connector) Connect(ctx context.Context, cred repository.Credentials) (repository.Session, error) {
	driver, err := NormalizeDriver(c.Driver)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrAuth, err)
	}

	db, err := Open(ctx, driver, c.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to %s: %w", model.ErrAuth, cred.Repository, err)
	}

	log := c.Logger
	if log == nil {
		log = logging.Discard()
	}

	limit := rate.Inf
	if c.QueriesPerSecond > 0 {
		limit = rate.Limit(c.QueriesPerSecond)
	}

	s := &Session{
		db:         db,
		driver:     driver,
		repository: cred.Repository,
		limiter:    rate.NewLimiter(limit, 1),
		objects:    c.Objects,
		log:        log.With("repository", cred.Repository, "driver", driver),
	}

	if err := s.authenticate(ctx, cred.User, cred.Password); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Session is a repository.Session backed by a *sql.DB.
type Session struct {
	db         *sql.DB
	driver     string
	repository string
	limiter    *rate.Limiter
	objects    ObjectOpener
	log        *slog.Logger
	released   bool
}

var _ repository.Session = (*Session)(nil)

func (s *Session) authenticate(ctx context.Context, user, password string) error {
	var hash string
	err := s.scanRow(ctx, "auth", `SELECT password_hash FROM dm_user WHERE user_name = ?`, []any{user}, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown user %q in %s", model.ErrAuth, user, s.repository)
	}
	if err != nil {
		return fmt.Errorf("%w: look up user %q: %w", model.ErrAuth, user, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("%w: invalid password for %q", model.ErrAuth, user)
	}
	return nil
}

// Release closes the database. It must be called exactly once.
func (s *Session) Release() error {
	if s.released {
		return errors.New("session already released")
	}
	s.released = true
	return s.db.Close()
}

// wait blocks until the throttle admits another statement.
func (s *Session) wait(ctx context.Context) error {
	return s.limiter.Wait(ctx)
}

func (s *Session) query(ctx context.Context, kind, query string, args ...any) (*sql.Rows, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.log.Debug("repository query", "kind", kind)
	return s.db.QueryContext(ctx, Rebind(s.driver, query), args...)
}

// scanRow runs a single-row query into dest. It returns sql.ErrNoRows
// unwrapped when nothing matches.
func (s *Session) scanRow(ctx context.Context, kind, query string, args []any, dest ...any) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.log.Debug("repository query", "kind", kind)
	return s.db.QueryRowContext(ctx, Rebind(s.driver, query), args...).Scan(dest...)
}

// Rebind rewrites "?" placeholders into the driver's bind syntax.
// Queries in this package never contain a literal "?".
func Rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
