// Package ledger implements the durable work queue that coordinates
// independent extrapolation worker processes through a single shared
// SQLite file.
//
// There is no supervisor process and no network: every operation is one
// exclusive transaction against the whole store, so any number of
// uncoordinated processes can open the same file and never hand the same
// job to two workers. The file must live on a filesystem with working
// exclusive-lock semantics; NFS is a documented unsupported environment.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Status is the state of one job row.
type Status int

// Status values are part of the on-disk contract and must not change:
// existing ledger files encode them as plain integers.
const (
	StatusFailed  Status = -1
	StatusPending Status = 0
	StatusRunning Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Counts summarizes the ledger by status.
type Counts struct {
	Pending int64
	Running int64
	Failed  int64
}

// DefaultLockTimeout bounds how long an operation waits for the exclusive
// lock before failing with ErrLockTimeout. Shorter bounds fail spuriously
// under contention; unbounded waits hang forever on a broken lock.
const DefaultLockTimeout = 60 * time.Second

// Ledger is the durable table of job rows. All methods are safe to call
// from multiple processes holding independent Ledger handles on the same
// file; each method is a single exclusive transaction.
//
// A row's absence means "no known work" - a completed job is deleted, not
// marked, so success and never-scheduled are indistinguishable on disk.
type Ledger struct {
	db *gorm.DB
}

// Option configures Open.
type Option func(*config)

type config struct {
	lockTimeout time.Duration
}

// WithLockTimeout overrides the bound on exclusive-lock acquisition.
func WithLockTimeout(d time.Duration) Option {
	return func(c *config) { c.lockTimeout = d }
}

// Open opens (or lazily creates) the ledger file at path and ensures the
// schema exists. The connection issues every transaction as BEGIN
// EXCLUSIVE with a bounded busy timeout, and the pool is capped at one
// connection so a process never holds two transactions at once.
func Open(path string, opts ...Option) (*Ledger, error) {
	cfg := config{lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := fmt.Sprintf("%s?_txlock=exclusive&_busy_timeout=%d", path, cfg.lockTimeout.Milliseconds())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	sqlDB.SetMaxOpenConns(1)

	l := &Ledger{db: db}
	if err := l.EnsureSchema(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return l, nil
}

// EnsureSchema idempotently creates the backing table. The schema is the
// on-disk contract shared with existing ledger files: a text identity
// with REPLACE semantics on conflict, and an integer status.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	err := l.db.WithContext(ctx).Exec(
		`CREATE TABLE IF NOT EXISTS extrapolations (datafile text, status integer, UNIQUE(datafile) ON CONFLICT REPLACE)`,
	).Error
	if err != nil {
		return classify(err)
	}
	return nil
}

// Upsert inserts a Pending row for identity, replacing any existing row
// regardless of its prior status. A changed input invalidates prior run
// history, so an earlier Failed or Running record is discarded.
func (l *Ledger) Upsert(ctx context.Context, identity string) error {
	err := l.db.WithContext(ctx).Exec(
		`INSERT INTO extrapolations (datafile, status) VALUES (?, ?)`,
		identity, StatusPending,
	).Error
	return classify(err)
}

// ClaimNext atomically selects one Pending row, marks it Running, and
// returns its identity. Selection is insertion order (ORDER BY rowid), so
// no pending row waits behind more than the rows inserted before it.
// Returns ok=false with no mutation when nothing is pending.
func (l *Ledger) ClaimNext(ctx context.Context) (identity string, ok bool, err error) {
	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := tx.Raw(
			`SELECT datafile FROM extrapolations WHERE status = ? ORDER BY rowid LIMIT 1`,
			StatusPending,
		).Row()
		if scanErr := row.Scan(&identity); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return nil
			}
			return scanErr
		}
		ok = true
		return tx.Exec(
			`UPDATE extrapolations SET status = ? WHERE datafile = ?`,
			StatusRunning, identity,
		).Error
	})
	if err != nil {
		return "", false, classify(err)
	}
	if !ok {
		return "", false, nil
	}
	return identity, true, nil
}

// Fail marks the row for identity as Failed. Failed rows are excluded
// from ClaimNext until re-promoted by Upsert or Reset.
func (l *Ledger) Fail(ctx context.Context, identity string) error {
	return l.setStatus(ctx, identity, StatusFailed)
}

func (l *Ledger) setStatus(ctx context.Context, identity string, status Status) error {
	res := l.db.WithContext(ctx).Exec(
		`UPDATE extrapolations SET status = ? WHERE datafile = ?`,
		status, identity,
	)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	return nil
}

// Complete deletes the row for identity. Deletion is the success marker:
// once a job finishes, the ledger forgets it ever existed.
func (l *Ledger) Complete(ctx context.Context, identity string) error {
	res := l.db.WithContext(ctx).Exec(
		`DELETE FROM extrapolations WHERE datafile = ?`,
		identity,
	)
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, identity)
	}
	return nil
}

// Reset re-promotes every Failed row to Pending and reports how many rows
// changed. This is the explicit operator action for retrying failures;
// the automatic selection policy never touches Failed rows.
func (l *Ledger) Reset(ctx context.Context) (int64, error) {
	res := l.db.WithContext(ctx).Exec(
		`UPDATE extrapolations SET status = ? WHERE status = ?`,
		StatusPending, StatusFailed,
	)
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

// Counts tallies rows by status. A Running count that never drains is the
// signature of a worker killed mid-job; those rows are not reclaimed
// automatically.
func (l *Ledger) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	rows, err := l.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) FROM extrapolations GROUP BY status`,
	).Rows()
	if err != nil {
		return Counts{}, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, classify(err)
		}
		switch status {
		case StatusPending:
			counts.Pending = n
		case StatusRunning:
			counts.Running = n
		case StatusFailed:
			counts.Failed = n
		}
	}
	return counts, classify(rows.Err())
}

// Close releases the underlying connection.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
