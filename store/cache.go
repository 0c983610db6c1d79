package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"

	_ "modernc.org/sqlite"
)

// Cache persists woven class bytes in SQLite, keyed by the hash of every
// input that affects the output.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// CacheKey combines the donor bytes, the target bytes and a fingerprint of
// the weaving configuration.
func CacheKey(donor, target []byte, config string) string {
	h := sha256.New()
	for _, part := range [][]byte{donor, target, []byte(config)} {
		h.Write(binary.BigEndian.AppendUint64(nil, uint64(len(part))))
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// OpenCache opens or creates the cache database at path. ":memory:" gives
// a private in-memory cache.
func OpenCache(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating cache directory for %s", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "setting busy timeout")
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS woven_classes (
		key     TEXT PRIMARY KEY,
		class   TEXT NOT NULL,
		data    BLOB NOT NULL,
		methods BLOB NOT NULL,
		created INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating cache table")
	}
	return &Cache{db: db, path: path}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// CacheEntry is a cached weaving result. Methods keeps every method's
// outcome, skipped ones included, so a cache hit reports what a fresh
// weave would.
type CacheEntry struct {
	Class   string
	Data    []byte
	Methods []MethodReport
}

// Get returns the entry cached under key.
func (c *Cache) Get(ctx context.Context, key string) (*CacheEntry, bool, error) {
	var (
		e       CacheEntry
		methods []byte
	)
	err := c.db.QueryRowContext(ctx, "SELECT class, data, methods FROM woven_classes WHERE key = ?", key).
		Scan(&e.Class, &e.Data, &methods)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "querying cache")
	}
	if err := cbor.Unmarshal(methods, &e.Methods); err != nil {
		return nil, false, errors.Wrapf(err, "decoding cached methods of %s", e.Class)
	}
	return &e, true, nil
}

// Put stores an entry under key.
func (c *Cache) Put(ctx context.Context, key string, e *CacheEntry) error {
	methods, err := cborEncMode.Marshal(e.Methods)
	if err != nil {
		return errors.Wrapf(err, "encoding methods of %s", e.Class)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO woven_classes (key, class, data, methods, created) VALUES (?, ?, ?, ?, ?)",
		key, e.Class, e.Data, methods, time.Now().Unix(),
	)
	if err != nil {
		return errors.Wrapf(err, "caching %s", e.Class)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM woven_classes").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting cache entries")
	}
	return n, nil
}

// Prune removes entries created before cutoff and returns how many went.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.ExecContext(ctx, "DELETE FROM woven_classes WHERE created < ?", cutoff.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "pruning cache")
	}
	return res.RowsAffected()
}
