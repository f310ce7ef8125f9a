/*
Package sqlite provides the SQLite-backed implementation of the pay
calendar storage interfaces.

INTERFACES IMPLEMENTED:
  calendar.Store / calendar.TxStore: schedules, periods, override audits
  payroll.DistributionStore:         tip distribution records

KEY TABLES:
  pay_schedules:        versioned schedule configurations per group
  pay_periods:          materialized periods, never deleted
  pay_period_overrides: append-only audit of admin field changes
  distributions:        tip payout lines per period

UNIQUENESS CONSTRAINTS (the engine's idempotence relies on these):
  - pay_periods (schedule_id, start_at_utc)
  - pay_periods (schedule_id, display_id)
  - one open-ended schedule per group (partial unique index)

TIME ENCODING:
  All instants cross this boundary as canonical UTC ISO-8601 strings with
  seconds precision ("...+00:00"); civil dates as "YYYY-MM-DD". Both sort
  lexicographically, so range predicates work on raw TEXT columns.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  a single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/tipsplit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := calendar.NewService(store)

SEE ALSO:
  - calendar/store.go: interface definitions
  - calendar/service.go: the engine driving this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/mattrap/TipSplit-sub000/calendar"
	"github.com/mattrap/TipSplit-sub000/payroll"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Schedule versions (closed by successor versions, never deleted)
	CREATE TABLE IF NOT EXISTS pay_schedules (
		id TEXT PRIMARY KEY,
		group_key TEXT NOT NULL,
		name TEXT NOT NULL,
		timezone TEXT NOT NULL,
		period_length_days INTEGER NOT NULL,
		pay_date_offset_days INTEGER NOT NULL,
		anchor_start_local TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		effective_to TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_group
		ON pay_schedules(group_key, effective_from);

	-- At most one open-ended version per group
	CREATE UNIQUE INDEX IF NOT EXISTS idx_schedules_one_open
		ON pay_schedules(group_key) WHERE effective_to IS NULL;

	-- Materialized pay periods (never deleted, status only moves forward)
	CREATE TABLE IF NOT EXISTS pay_periods (
		id TEXT PRIMARY KEY,
		schedule_id TEXT NOT NULL,
		start_at_utc TEXT NOT NULL,
		end_at_utc TEXT NOT NULL,
		pay_date_local TEXT NOT NULL,
		label_year INTEGER NOT NULL,
		sequence_in_year INTEGER NOT NULL DEFAULT 0,
		display_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'OPEN',
		locked_at_utc TEXT,
		payed_at_utc TEXT,
		UNIQUE(schedule_id, start_at_utc),
		UNIQUE(schedule_id, display_id)
	);

	-- Hot path: containment lookups and descending listings
	CREATE INDEX IF NOT EXISTS idx_periods_schedule_start
		ON pay_periods(schedule_id, start_at_utc DESC);
	CREATE INDEX IF NOT EXISTS idx_periods_label_year
		ON pay_periods(schedule_id, label_year);

	-- Admin override audit (append-only)
	CREATE TABLE IF NOT EXISTS pay_period_overrides (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		field TEXT NOT NULL,
		old_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		reason TEXT NOT NULL,
		actor TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_overrides_period
		ON pay_period_overrides(period_id);

	-- Tip distribution lines per period
	CREATE TABLE IF NOT EXISTS distributions (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		employee TEXT NOT NULL,
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_distributions_period
		ON distributions(period_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the actual SQL against either the pooled connection or an
// open transaction. The exported Store wraps it with locking.
type conn struct {
	db dbtx
}

// =============================================================================
// SCHEDULES (calendar.Store)
// =============================================================================

func (s *Store) InsertSchedule(ctx context.Context, sched *calendar.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.insertSchedule(ctx, sched)
}

func (c conn) insertSchedule(ctx context.Context, sched *calendar.Schedule) error {
	var effectiveTo any
	if sched.EffectiveTo != nil {
		effectiveTo = calendar.FormatDate(*sched.EffectiveTo)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pay_schedules
			(id, group_key, name, timezone, period_length_days, pay_date_offset_days,
			 anchor_start_local, effective_from, effective_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.GroupKey, sched.Name, sched.Timezone,
		sched.PeriodLengthDays, sched.PayDateOffsetDays,
		sched.AnchorStartLocal, calendar.FormatDate(sched.EffectiveFrom), effectiveTo,
		calendar.FormatUTC(sched.CreatedAt), calendar.FormatUTC(sched.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}
	return nil
}

func (s *Store) CloseSchedule(ctx context.Context, id calendar.ScheduleID, effectiveTo, updatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.closeSchedule(ctx, id, effectiveTo, updatedAt)
}

func (c conn) closeSchedule(ctx context.Context, id calendar.ScheduleID, effectiveTo, updatedAt time.Time) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE pay_schedules SET effective_to = ?, updated_at = ?
		WHERE id = ? AND effective_to IS NULL`,
		calendar.FormatDate(effectiveTo), calendar.FormatUTC(updatedAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to close schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: open-ended schedule %s", calendar.ErrScheduleNotFound, id)
	}
	return nil
}

const scheduleColumns = `id, group_key, name, timezone, period_length_days,
	pay_date_offset_days, anchor_start_local, effective_from, effective_to,
	created_at, updated_at`

func (s *Store) ScheduleByID(ctx context.Context, id calendar.ScheduleID) (*calendar.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.scheduleByID(ctx, id)
}

func (c conn) scheduleByID(ctx context.Context, id calendar.ScheduleID) (*calendar.Schedule, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM pay_schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

func (s *Store) OpenSchedule(ctx context.Context, groupKey string) (*calendar.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.openSchedule(ctx, groupKey)
}

func (c conn) openSchedule(ctx context.Context, groupKey string) (*calendar.Schedule, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM pay_schedules
		 WHERE group_key = ? AND effective_to IS NULL`, groupKey)
	return scanSchedule(row)
}

func (s *Store) ActiveScheduleOn(ctx context.Context, groupKey string, date time.Time) (*calendar.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.activeScheduleOn(ctx, groupKey, date)
}

func (c conn) activeScheduleOn(ctx context.Context, groupKey string, date time.Time) (*calendar.Schedule, error) {
	d := calendar.FormatDate(date)
	row := c.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM pay_schedules
		 WHERE group_key = ? AND effective_from <= ?
		   AND (effective_to IS NULL OR effective_to >= ?)
		 ORDER BY effective_from DESC LIMIT 1`,
		groupKey, d, d)
	return scanSchedule(row)
}

func (s *Store) CountSchedules(ctx context.Context, groupKey string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.countSchedules(ctx, groupKey)
}

func (c conn) countSchedules(ctx context.Context, groupKey string) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pay_schedules WHERE group_key = ?`, groupKey,
	).Scan(&n)
	return n, err
}

func scanSchedule(row *sql.Row) (*calendar.Schedule, error) {
	var (
		sched         calendar.Schedule
		effectiveFrom string
		effectiveTo   sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&sched.ID, &sched.GroupKey, &sched.Name, &sched.Timezone,
		&sched.PeriodLengthDays, &sched.PayDateOffsetDays,
		&sched.AnchorStartLocal, &effectiveFrom, &effectiveTo,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	if sched.EffectiveFrom, err = calendar.ParseDate(effectiveFrom); err != nil {
		return nil, err
	}
	if effectiveTo.Valid {
		to, err := calendar.ParseDate(effectiveTo.String)
		if err != nil {
			return nil, err
		}
		sched.EffectiveTo = &to
	}
	if sched.CreatedAt, err = calendar.ParseUTC(createdAt); err != nil {
		return nil, err
	}
	if sched.UpdatedAt, err = calendar.ParseUTC(updatedAt); err != nil {
		return nil, err
	}
	return &sched, nil
}

// =============================================================================
// PERIODS (calendar.Store)
// =============================================================================

func (s *Store) InsertPeriod(ctx context.Context, p *calendar.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.insertPeriod(ctx, p)
}

func (c conn) insertPeriod(ctx context.Context, p *calendar.Period) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pay_periods
			(id, schedule_id, start_at_utc, end_at_utc, pay_date_local,
			 label_year, sequence_in_year, display_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ScheduleID,
		calendar.FormatUTC(p.StartAtUTC), calendar.FormatUTC(p.EndAtUTC),
		calendar.FormatDate(p.PayDateLocal),
		p.LabelYear, p.SequenceInYear, p.DisplayID, p.Status,
	)
	if isUniqueViolation(err) {
		// Inserts carry unique provisional display ids, so the only
		// constraint that can fire here is (schedule_id, start_at_utc).
		return fmt.Errorf("%w: schedule %s at %s",
			calendar.ErrDuplicatePeriodStart, p.ScheduleID, calendar.FormatUTC(p.StartAtUTC))
	}
	if err != nil {
		return fmt.Errorf("failed to insert period: %w", err)
	}
	return nil
}

const periodColumns = `id, schedule_id, start_at_utc, end_at_utc, pay_date_local,
	label_year, sequence_in_year, display_id, status, locked_at_utc, payed_at_utc`

func (s *Store) PeriodByID(ctx context.Context, id calendar.PeriodID) (*calendar.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.periodByID(ctx, id)
}

func (c conn) periodByID(ctx context.Context, id calendar.PeriodID) (*calendar.Period, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM pay_periods WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return scanOnePeriod(rows)
}

func (s *Store) PeriodContaining(ctx context.Context, scheduleID calendar.ScheduleID, ts time.Time) (*calendar.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.periodContaining(ctx, scheduleID, ts)
}

func (c conn) periodContaining(ctx context.Context, scheduleID calendar.ScheduleID, ts time.Time) (*calendar.Period, error) {
	stamp := calendar.FormatUTC(ts)
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM pay_periods
		 WHERE schedule_id = ? AND start_at_utc <= ? AND end_at_utc > ?
		 LIMIT 1`,
		scheduleID, stamp, stamp)
	if err != nil {
		return nil, err
	}
	return scanOnePeriod(rows)
}

func (s *Store) PeriodsInYear(ctx context.Context, scheduleID calendar.ScheduleID, labelYear int) ([]calendar.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.periodsInYear(ctx, scheduleID, labelYear)
}

func (c conn) periodsInYear(ctx context.Context, scheduleID calendar.ScheduleID, labelYear int) ([]calendar.Period, error) {
	return c.queryPeriods(ctx,
		`SELECT `+periodColumns+` FROM pay_periods
		 WHERE schedule_id = ? AND label_year = ?
		 ORDER BY start_at_utc ASC`,
		scheduleID, labelYear)
}

func (s *Store) PeriodStartsBetween(ctx context.Context, scheduleID calendar.ScheduleID, from, to time.Time) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.periodStartsBetween(ctx, scheduleID, from, to)
}

func (c conn) periodStartsBetween(ctx context.Context, scheduleID calendar.ScheduleID, from, to time.Time) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT start_at_utc FROM pay_periods
		 WHERE schedule_id = ? AND start_at_utc >= ? AND start_at_utc < ?`,
		scheduleID, calendar.FormatUTC(from), calendar.FormatUTC(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	starts := make(map[string]bool)
	for rows.Next() {
		var start string
		if err := rows.Scan(&start); err != nil {
			return nil, err
		}
		starts[start] = true
	}
	return starts, rows.Err()
}

func (s *Store) ListPeriods(ctx context.Context, scheduleID calendar.ScheduleID, limit, offset int) ([]calendar.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.listPeriods(ctx, scheduleID, limit, offset)
}

func (c conn) listPeriods(ctx context.Context, scheduleID calendar.ScheduleID, limit, offset int) ([]calendar.Period, error) {
	return c.queryPeriods(ctx,
		`SELECT `+periodColumns+` FROM pay_periods
		 WHERE schedule_id = ?
		 ORDER BY start_at_utc DESC
		 LIMIT ? OFFSET ?`,
		scheduleID, limit, offset)
}

func (s *Store) UpdatePeriodSequence(ctx context.Context, id calendar.PeriodID, seq int, displayID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.updatePeriodSequence(ctx, id, seq, displayID)
}

func (c conn) updatePeriodSequence(ctx context.Context, id calendar.PeriodID, seq int, displayID string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE pay_periods SET sequence_in_year = ?, display_id = ? WHERE id = ?`,
		seq, displayID, id)
	if err != nil {
		return fmt.Errorf("failed to update period sequence: %w", err)
	}
	return nil
}

func (s *Store) UpdatePeriodStatus(ctx context.Context, id calendar.PeriodID, from, to calendar.PeriodStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.updatePeriodStatus(ctx, id, from, to, at)
}

func (c conn) updatePeriodStatus(ctx context.Context, id calendar.PeriodID, from, to calendar.PeriodStatus, at time.Time) error {
	var stampColumn string
	switch to {
	case calendar.StatusLocked:
		stampColumn = "locked_at_utc"
	case calendar.StatusPayed:
		stampColumn = "payed_at_utc"
	default:
		return fmt.Errorf("%w: no transition targets %s", calendar.ErrInvalidTransition, to)
	}

	res, err := c.db.ExecContext(ctx,
		`UPDATE pay_periods SET status = ?, `+stampColumn+` = ?
		 WHERE id = ? AND status = ?`,
		to, calendar.FormatUTC(at), id, from)
	if err != nil {
		return fmt.Errorf("failed to update period status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: period %s is not %s", calendar.ErrInvalidTransition, id, from)
	}
	return nil
}

func (s *Store) UpdatePeriodPayDate(ctx context.Context, id calendar.PeriodID, payDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.updatePeriodPayDate(ctx, id, payDate)
}

func (c conn) updatePeriodPayDate(ctx context.Context, id calendar.PeriodID, payDate time.Time) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE pay_periods SET pay_date_local = ? WHERE id = ?`,
		calendar.FormatDate(payDate), id)
	if err != nil {
		return fmt.Errorf("failed to update period pay date: %w", err)
	}
	return nil
}

func (c conn) queryPeriods(ctx context.Context, query string, args ...any) ([]calendar.Period, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []calendar.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanOnePeriod(rows *sql.Rows) (*calendar.Period, error) {
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	p, err := scanPeriod(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanPeriod(rows *sql.Rows) (calendar.Period, error) {
	var (
		p            calendar.Period
		startAt      string
		endAt        string
		payDateLocal string
		lockedAt     sql.NullString
		payedAt      sql.NullString
	)
	err := rows.Scan(
		&p.ID, &p.ScheduleID, &startAt, &endAt, &payDateLocal,
		&p.LabelYear, &p.SequenceInYear, &p.DisplayID, &p.Status,
		&lockedAt, &payedAt,
	)
	if err != nil {
		return p, fmt.Errorf("failed to scan period: %w", err)
	}

	if p.StartAtUTC, err = calendar.ParseUTC(startAt); err != nil {
		return p, err
	}
	if p.EndAtUTC, err = calendar.ParseUTC(endAt); err != nil {
		return p, err
	}
	if p.PayDateLocal, err = calendar.ParseDate(payDateLocal); err != nil {
		return p, err
	}
	if lockedAt.Valid {
		t, err := calendar.ParseUTC(lockedAt.String)
		if err != nil {
			return p, err
		}
		p.LockedAtUTC = &t
	}
	if payedAt.Valid {
		t, err := calendar.ParseUTC(payedAt.String)
		if err != nil {
			return p, err
		}
		p.PayedAtUTC = &t
	}
	return p, nil
}

// =============================================================================
// OVERRIDES (calendar.Store)
// =============================================================================

func (s *Store) InsertOverride(ctx context.Context, o *calendar.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{s.db}.insertOverride(ctx, o)
}

func (c conn) insertOverride(ctx context.Context, o *calendar.Override) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO pay_period_overrides
			(id, period_id, field, old_value, new_value, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.PeriodID, o.Field, o.OldValue, o.NewValue,
		o.Reason, o.Actor, calendar.FormatUTC(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert override: %w", err)
	}
	return nil
}

func (s *Store) OverridesForPeriod(ctx context.Context, id calendar.PeriodID) ([]calendar.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return conn{s.db}.overridesForPeriod(ctx, id)
}

func (c conn) overridesForPeriod(ctx context.Context, id calendar.PeriodID) ([]calendar.Override, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, period_id, field, old_value, new_value, reason, actor, created_at
		FROM pay_period_overrides
		WHERE period_id = ?
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	var overrides []calendar.Override
	for rows.Next() {
		var (
			o         calendar.Override
			createdAt string
		)
		if err := rows.Scan(&o.ID, &o.PeriodID, &o.Field, &o.OldValue,
			&o.NewValue, &o.Reason, &o.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		if o.CreatedAt, err = calendar.ParseUTC(createdAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// =============================================================================
// DISTRIBUTIONS (payroll.DistributionStore)
// =============================================================================

func (s *Store) InsertDistribution(ctx context.Context, d *payroll.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distributions (id, period_id, employee, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.PeriodID, d.Employee, d.Amount.String(), calendar.FormatUTC(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert distribution: %w", err)
	}
	return nil
}

func (s *Store) ListDistributions(ctx context.Context, periodID calendar.PeriodID) ([]payroll.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_id, employee, amount, created_at
		FROM distributions
		WHERE period_id = ?
		ORDER BY created_at ASC, id ASC`, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributions: %w", err)
	}
	defer rows.Close()

	var dists []payroll.Distribution
	for rows.Next() {
		var (
			d         payroll.Distribution
			amount    string
			createdAt string
		)
		if err := rows.Scan(&d.ID, &d.PeriodID, &d.Employee, &amount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan distribution: %w", err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse distribution amount: %w", err)
		}
		if d.CreatedAt, err = calendar.ParseUTC(createdAt); err != nil {
			return nil, err
		}
		dists = append(dists, d)
	}
	return dists, rows.Err()
}

func (s *Store) PeriodIDsWithDistributions(ctx context.Context, scheduleID calendar.ScheduleID) (map[calendar.PeriodID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT d.period_id
		FROM distributions d
		JOIN pay_periods p ON p.id = d.period_id
		WHERE p.schedule_id = ?`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distributed periods: %w", err)
	}
	defer rows.Close()

	ids := make(map[calendar.PeriodID]bool)
	for rows.Next() {
		var id calendar.PeriodID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (calendar.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. The store's write
// lock is held for the whole transaction, so fn must use only the store
// handle it is given.
func (s *Store) WithTx(ctx context.Context, fn func(calendar.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn{sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore exposes the calendar.Store interface over an open transaction,
// without re-acquiring the parent's locks.
type txStore struct {
	c conn
}

func (ts *txStore) InsertSchedule(ctx context.Context, sched *calendar.Schedule) error {
	return ts.c.insertSchedule(ctx, sched)
}

func (ts *txStore) CloseSchedule(ctx context.Context, id calendar.ScheduleID, effectiveTo, updatedAt time.Time) error {
	return ts.c.closeSchedule(ctx, id, effectiveTo, updatedAt)
}

func (ts *txStore) ScheduleByID(ctx context.Context, id calendar.ScheduleID) (*calendar.Schedule, error) {
	return ts.c.scheduleByID(ctx, id)
}

func (ts *txStore) OpenSchedule(ctx context.Context, groupKey string) (*calendar.Schedule, error) {
	return ts.c.openSchedule(ctx, groupKey)
}

func (ts *txStore) ActiveScheduleOn(ctx context.Context, groupKey string, date time.Time) (*calendar.Schedule, error) {
	return ts.c.activeScheduleOn(ctx, groupKey, date)
}

func (ts *txStore) CountSchedules(ctx context.Context, groupKey string) (int, error) {
	return ts.c.countSchedules(ctx, groupKey)
}

func (ts *txStore) InsertPeriod(ctx context.Context, p *calendar.Period) error {
	return ts.c.insertPeriod(ctx, p)
}

func (ts *txStore) PeriodByID(ctx context.Context, id calendar.PeriodID) (*calendar.Period, error) {
	return ts.c.periodByID(ctx, id)
}

func (ts *txStore) PeriodContaining(ctx context.Context, scheduleID calendar.ScheduleID, t time.Time) (*calendar.Period, error) {
	return ts.c.periodContaining(ctx, scheduleID, t)
}

func (ts *txStore) PeriodsInYear(ctx context.Context, scheduleID calendar.ScheduleID, labelYear int) ([]calendar.Period, error) {
	return ts.c.periodsInYear(ctx, scheduleID, labelYear)
}

func (ts *txStore) PeriodStartsBetween(ctx context.Context, scheduleID calendar.ScheduleID, from, to time.Time) (map[string]bool, error) {
	return ts.c.periodStartsBetween(ctx, scheduleID, from, to)
}

func (ts *txStore) ListPeriods(ctx context.Context, scheduleID calendar.ScheduleID, limit, offset int) ([]calendar.Period, error) {
	return ts.c.listPeriods(ctx, scheduleID, limit, offset)
}

func (ts *txStore) UpdatePeriodSequence(ctx context.Context, id calendar.PeriodID, seq int, displayID string) error {
	return ts.c.updatePeriodSequence(ctx, id, seq, displayID)
}

func (ts *txStore) UpdatePeriodStatus(ctx context.Context, id calendar.PeriodID, from, to calendar.PeriodStatus, at time.Time) error {
	return ts.c.updatePeriodStatus(ctx, id, from, to, at)
}

func (ts *txStore) UpdatePeriodPayDate(ctx context.Context, id calendar.PeriodID, payDate time.Time) error {
	return ts.c.updatePeriodPayDate(ctx, id, payDate)
}

func (ts *txStore) InsertOverride(ctx context.Context, o *calendar.Override) error {
	return ts.c.insertOverride(ctx, o)
}

func (ts *txStore) OverridesForPeriod(ctx context.Context, id calendar.PeriodID) ([]calendar.Override, error) {
	return ts.c.overridesForPeriod(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
