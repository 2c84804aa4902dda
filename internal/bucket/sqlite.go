package bucket

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/sheltercache/internal/resource"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS buckets (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	bucket     TEXT NOT NULL REFERENCES buckets(name) ON DELETE CASCADE,
	key        TEXT NOT NULL,
	method     TEXT NOT NULL,
	url        TEXT NOT NULL,
	status     INTEGER NOT NULL,
	header     TEXT NOT NULL,
	body       BLOB,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Open inserts the bucket row if missing and returns a handle to it.
func (s *SQLite) Open(ctx context.Context, name string) (Bucket, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UnixNano())
	if err != nil {
		return nil, wrapSQL("create bucket", err)
	}
	return &sqliteBucket{db: s.db, name: name}, nil
}

// Get returns a handle to the bucket if its row exists.
func (s *SQLite) Get(ctx context.Context, name string) (Bucket, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return nil, false, wrapSQL("lookup bucket", err)
	}
	if n == 0 {
		return nil, false, nil
	}
	return &sqliteBucket{db: s.db, name: name}, true, nil
}

// Keys lists bucket names in creation order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM buckets ORDER BY created_at, name`)
	if err != nil {
		return nil, wrapSQL("list buckets", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the bucket row; its entries go with it by cascade.
func (s *SQLite) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name)
	if err != nil {
		return false, wrapSQL("delete bucket", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete bucket: %w", err)
	}
	return n > 0, nil
}

type sqliteBucket struct {
	db   *sql.DB
	name string
}

func (b *sqliteBucket) Name() string { return b.name }

// Match looks up the entry for req.
func (b *sqliteBucket) Match(ctx context.Context, req resource.Request) (resource.Response, bool, error) {
	if !req.Matchable() {
		return resource.Response{}, false, nil
	}
	var (
		status int
		header string
		body   []byte
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT status, header, body FROM entries WHERE bucket = ? AND key = ?`,
		b.name, resource.Key(req)).Scan(&status, &header, &body)
	if err == sql.ErrNoRows {
		return resource.Response{}, false, nil
	}
	if err != nil {
		return resource.Response{}, false, wrapSQL("match entry", err)
	}
	resp := resource.Response{Status: status, Body: body}
	if header != "" {
		var h http.Header
		if err := json.Unmarshal([]byte(header), &h); err != nil {
			return resource.Response{}, false, fmt.Errorf("parsing stored header: %w", err)
		}
		resp.Header = h
	}
	return resp, true, nil
}

// Put stores a single entry.
func (b *sqliteBucket) Put(ctx context.Context, req resource.Request, resp resource.Response) error {
	return b.PutAll(ctx, []Entry{{Request: req, Response: resp}})
}

// PutAll upserts all entries in one transaction.
func (b *sqliteBucket) PutAll(ctx context.Context, entries []Entry) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapSQL("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var n int
	if err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM buckets WHERE name = ?`, b.name).Scan(&n); err != nil {
		return wrapSQL("lookup bucket", err)
	}
	if n == 0 {
		return fmt.Errorf("bucket %s: %w", b.name, ErrBucketDeleted)
	}

	now := time.Now().UnixNano()
	for i, e := range entries {
		resp := stored(e.Response)
		header, mErr := json.Marshal(resp.Header)
		if mErr != nil {
			return fmt.Errorf("marshaling header: %w", mErr)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO entries (bucket, key, method, url, status, header, body, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(bucket, key) DO UPDATE SET
	status = excluded.status,
	header = excluded.header,
	body = excluded.body`,
			b.name, resource.Key(e.Request), e.Request.NormalizedMethod(), resource.StripFragment(e.Request.URL),
			resp.Status, string(header), resp.Body, now+int64(i))
		if err != nil {
			return wrapSQL("put entry", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return wrapSQL("commit", err)
	}
	return nil
}

// Keys lists stored requests in insertion order.
func (b *sqliteBucket) Keys(ctx context.Context) ([]resource.Request, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT method, url FROM entries WHERE bucket = ? ORDER BY created_at, key`, b.name)
	if err != nil {
		return nil, wrapSQL("list entries", err)
	}
	defer rows.Close()
	var out []resource.Request
	for rows.Next() {
		var r resource.Request
		if err := rows.Scan(&r.Method, &r.URL); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Delete removes the entry for req.
func (b *sqliteBucket) Delete(ctx context.Context, req resource.Request) (bool, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM entries WHERE bucket = ? AND key = ?`, b.name, resource.Key(req))
	if err != nil {
		return false, wrapSQL("delete entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	return n > 0, nil
}

// wrapSQL maps the driver's closed-database error onto ErrClosed.
func wrapSQL(op string, err error) error {
	if err != nil && strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s: %w", op, err)
}
