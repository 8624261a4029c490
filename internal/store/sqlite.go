package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/tempo/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a
// Store. Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Firing cycles ---

func (s *SQLiteStore) EnsureCycle(ctx context.Context, c *model.FiringCycle) error {
	s.logger.Debug("sql", "op", "ensure", "table", "cycles", "id", c.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cycles (id, time, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		c.ID, c.Time.UTC().Format(time.RFC3339Nano), c.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*model.FiringCycle, error) {
	s.logger.Debug("sql", "op", "select", "table", "cycles", "id", id)

	var c model.FiringCycle
	var cycleTime, createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, time, created_at FROM cycles WHERE id = ?`, id,
	).Scan(&c.ID, &cycleTime, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Time, _ = time.Parse(time.RFC3339Nano, cycleTime)
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &c, nil
}

func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]*model.FiringCycle, error) {
	s.logger.Debug("sql", "op", "list", "table", "cycles", "limit", limit)
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, time, created_at FROM cycles ORDER BY time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cycles []*model.FiringCycle
	for rows.Next() {
		var c model.FiringCycle
		var cycleTime, createdAt string
		if err := rows.Scan(&c.ID, &cycleTime, &createdAt); err != nil {
			return nil, err
		}
		c.Time, _ = time.Parse(time.RFC3339Nano, cycleTime)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		cycles = append(cycles, &c)
	}
	return cycles, rows.Err()
}

// --- Instances ---

func (s *SQLiteStore) CreateInstance(ctx context.Context, inst *model.Instance) error {
	s.logger.Debug("sql", "op", "insert", "table", "instances", "id", inst.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO instances (id, task_id, cycle_id, attempt, state, queue, priority,
		 reason, not_before, kill_requested_at, created_at, admitted_at, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.TaskID, inst.CycleID, inst.Attempt, string(inst.State),
		inst.Queue, inst.Priority, inst.Reason,
		formatTimePtr(inst.NotBefore), formatTimePtr(inst.KillRequestedAt),
		inst.CreatedAt.Format(time.RFC3339Nano),
		formatTimePtr(inst.AdmittedAt), formatTimePtr(inst.StartedAt), formatTimePtr(inst.FinishedAt),
	)
	return err
}

func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*model.Instance, error) {
	s.logger.Debug("sql", "op", "select", "table", "instances", "id", id)
	return s.scanInstance(s.db.QueryRowContext(ctx,
		instanceColumns+` FROM instances WHERE id = ?`, id))
}

func (s *SQLiteStore) UpdateInstance(ctx context.Context, inst *model.Instance) error {
	s.logger.Debug("sql", "op", "update", "table", "instances", "id", inst.ID, "state", inst.State)

	result, err := s.db.ExecContext(ctx,
		`UPDATE instances SET state=?, reason=?, not_before=?, kill_requested_at=?,
		 admitted_at=?, started_at=?, finished_at=? WHERE id=?`,
		string(inst.State), inst.Reason,
		formatTimePtr(inst.NotBefore), formatTimePtr(inst.KillRequestedAt),
		formatTimePtr(inst.AdmittedAt), formatTimePtr(inst.StartedAt), formatTimePtr(inst.FinishedAt),
		inst.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("instance %s not found", inst.ID)
	}
	return nil
}

func (s *SQLiteStore) GetInstancesByState(ctx context.Context, state model.InstanceState) ([]*model.Instance, error) {
	s.logger.Debug("sql", "op", "list_by_state", "table", "instances", "state", state)

	rows, err := s.db.QueryContext(ctx,
		instanceColumns+` FROM instances WHERE state = ? ORDER BY created_at, id`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanInstances(rows)
}

func (s *SQLiteStore) GetInstancesByCycle(ctx context.Context, cycleID string) ([]*model.Instance, error) {
	s.logger.Debug("sql", "op", "list_by_cycle", "table", "instances", "cycle_id", cycleID)

	rows, err := s.db.QueryContext(ctx,
		instanceColumns+` FROM instances WHERE cycle_id = ? ORDER BY created_at, id`, cycleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanInstances(rows)
}

func (s *SQLiteStore) ListInstances(ctx context.Context, opts model.ListOptions) ([]*model.Instance, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "instances", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var args []any

	if opts.State != "" {
		whereClauses = append(whereClauses, "state = ?")
		args = append(args, opts.State)
	}
	if opts.TaskID != "" {
		whereClauses = append(whereClauses, "task_id = ?")
		args = append(args, opts.TaskID)
	}
	if opts.CycleID != "" {
		whereClauses = append(whereClauses, "cycle_id = ?")
		args = append(args, opts.CycleID)
	}
	if opts.Queue != "" {
		whereClauses = append(whereClauses, "queue = ?")
		args = append(args, opts.Queue)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM instances`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		instanceColumns+` FROM instances`+whereSQL+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	instances, err := s.scanInstances(rows)
	if err != nil {
		return nil, 0, err
	}
	return instances, total, nil
}

func (s *SQLiteStore) LatestAttempt(ctx context.Context, taskID, cycleID string) (*model.Instance, error) {
	s.logger.Debug("sql", "op", "latest_attempt", "table", "instances", "task_id", taskID, "cycle_id", cycleID)
	return s.scanInstance(s.db.QueryRowContext(ctx,
		instanceColumns+` FROM instances WHERE task_id = ? AND cycle_id = ?
		 ORDER BY attempt DESC LIMIT 1`, taskID, cycleID))
}

func (s *SQLiteStore) CountRunningByQueue(ctx context.Context) (map[string]int, error) {
	s.logger.Debug("sql", "op", "count_running", "table", "instances")

	rows, err := s.db.QueryContext(ctx,
		`SELECT queue, COUNT(*) FROM instances WHERE state = 'RUNNING' GROUP BY queue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var queue string
		var n int
		if err := rows.Scan(&queue, &n); err != nil {
			return nil, err
		}
		counts[queue] = n
	}
	return counts, rows.Err()
}

// --- Trigger watermarks ---

func (s *SQLiteStore) GetTriggerMark(ctx context.Context, taskID string) (string, error) {
	s.logger.Debug("sql", "op", "select", "table", "trigger_marks", "task_id", taskID)

	var cycleID string
	err := s.db.QueryRowContext(ctx,
		`SELECT cycle_id FROM trigger_marks WHERE task_id = ?`, taskID,
	).Scan(&cycleID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return cycleID, nil
}

func (s *SQLiteStore) SetTriggerMark(ctx context.Context, taskID, cycleID string, firedAt time.Time) error {
	s.logger.Debug("sql", "op", "upsert", "table", "trigger_marks", "task_id", taskID, "cycle_id", cycleID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trigger_marks (task_id, cycle_id, fired_at) VALUES (?, ?, ?)
		 ON CONFLICT (task_id) DO UPDATE SET cycle_id = excluded.cycle_id, fired_at = excluded.fired_at`,
		taskID, cycleID, firedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// --- scan helpers ---

const instanceColumns = `SELECT id, task_id, cycle_id, attempt, state, queue, priority,
	 reason, not_before, kill_requested_at, created_at, admitted_at, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanInstance(row scanner) (*model.Instance, error) {
	var inst model.Instance
	var state, createdAt string
	var notBefore, killRequestedAt, admittedAt, startedAt, finishedAt *string

	err := row.Scan(
		&inst.ID, &inst.TaskID, &inst.CycleID, &inst.Attempt, &state,
		&inst.Queue, &inst.Priority, &inst.Reason,
		&notBefore, &killRequestedAt,
		&createdAt, &admittedAt, &startedAt, &finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	inst.State = model.InstanceState(state)
	inst.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	inst.NotBefore = parseTimePtr(notBefore)
	inst.KillRequestedAt = parseTimePtr(killRequestedAt)
	inst.AdmittedAt = parseTimePtr(admittedAt)
	inst.StartedAt = parseTimePtr(startedAt)
	inst.FinishedAt = parseTimePtr(finishedAt)

	return &inst, nil
}

func (s *SQLiteStore) scanInstances(rows *sql.Rows) ([]*model.Instance, error) {
	var instances []*model.Instance
	for rows.Next() {
		inst, err := s.scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339Nano)
	return &v
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
