/*
Package sqlite provides the SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Durable storage for users, leaves, and alarms. The same SQL shapes apply
  to PostgreSQL with minor dialect changes; nothing here leaks into the
  domain packages.

KEY TABLES:
  users:   accounts with the remaining-day balance (soft-deactivated, never
           deleted)
  leaves:  leave/duty requests with status and the recorded reservation
  alarms:  immutable notification rows, joined to leaves for the
           status-filtered feed

ENCODING:
  Day amounts are stored as decimal TEXT (exact, no float drift), dates as
  YYYY-MM-DD TEXT, timestamps as RFC3339 TEXT.

WAL MODE:
  The database is opened with WAL so readers do not block the single
  writer. Foreign keys are enforced.

TRANSACTIONS:
  WithTx wraps fn in BEGIN/COMMIT; every engine operation (apply, cancel,
  decide) runs through it so balance and leave writes land atomically.

MIGRATION:
  Schema is auto-migrated on New(). For production use a versioned
  migration tool instead.

SEE ALSO:
  - leave/store.go: the interfaces implemented here
  - store/memory: in-memory twin for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.TxStore on SQLite.
type Store struct {
	queries
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and sidesteps
	// SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)

	s := &Store{queries: queries{q: db}, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		remain_days TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leaves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		using_days TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_user ON leaves(user_id);
	CREATE INDEX IF NOT EXISTS idx_leaves_status_start ON leaves(status, start_date);

	CREATE TABLE IF NOT EXISTS alarms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		leave_id INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alarms_user ON alarms(user_id);
	CREATE INDEX IF NOT EXISTS idx_alarms_leave ON alarms(leave_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// =============================================================================
// QUERIES - Shared between the root connection and transactions
// =============================================================================

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q queryer
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

const userColumns = `id, username, email, password_hash, role, remain_days, active, created_at`

// GetUser does not filter on active: deactivated users keep their pending
// leaves, and the engine still needs the row to refund them.
func (s *queries) GetUser(ctx context.Context, id int64) (*leave.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *queries) GetUserByEmail(ctx context.Context, email string) (*leave.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND active = 1`, email)
	return scanUser(row)
}

func (s *queries) SaveUser(ctx context.Context, u *leave.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.ID == 0 {
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO users (username, email, password_hash, role, remain_days, active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			u.Username, u.Email, u.PasswordHash, string(u.Role),
			u.RemainDays.Value.String(), boolToInt(u.Active), u.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = id
		return nil
	}

	_, err := s.q.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?,
		        remain_days = ?, active = ? WHERE id = ?`,
		u.Username, u.Email, u.PasswordHash, string(u.Role),
		u.RemainDays.Value.String(), boolToInt(u.Active), u.ID)
	return err
}

func (s *queries) SearchUsers(ctx context.Context, query string, offset, limit int) ([]leave.User, int, error) {
	where := `active = 1`
	args := []any{}
	if query != "" {
		where += ` AND (username LIKE ? OR email LIKE ?)`
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where+` ORDER BY id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []leave.User{}
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

// -----------------------------------------------------------------------------
// Leaves
// -----------------------------------------------------------------------------

func (s *queries) GetLeave(ctx context.Context, id int64) (*leave.Leave, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, type, start_date, end_date, status, using_days, created_at
		 FROM leaves WHERE id = ?`, id)

	var l leave.Leave
	var typ, start, end, status, using, created string
	err := row.Scan(&l.ID, &l.UserID, &typ, &start, &end, &status, &using, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := decodeLeave(&l, typ, start, end, status, using, created); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *queries) SaveLeave(ctx context.Context, l *leave.Leave) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	if l.ID == 0 {
		res, err := s.q.ExecContext(ctx,
			`INSERT INTO leaves (user_id, type, start_date, end_date, status, using_days, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.UserID, string(l.Type), l.Range.Start.String(), l.Range.End.String(),
			string(l.Status), l.UsingDays.Value.String(), l.CreatedAt.Format(time.RFC3339))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		l.ID = id
		return nil
	}

	// Date range and type are immutable after apply; only the status and
	// the recorded reservation ever change.
	_, err := s.q.ExecContext(ctx,
		`UPDATE leaves SET status = ?, using_days = ? WHERE id = ?`,
		string(l.Status), l.UsingDays.Value.String(), l.ID)
	return err
}

func (s *queries) ListLeaves(ctx context.Context, userID *int64) ([]leave.Info, error) {
	query := `SELECT l.id, l.user_id, u.username, l.type, l.status, l.start_date, l.end_date
	          FROM leaves l JOIN users u ON u.id = l.user_id`
	args := []any{}
	if userID != nil {
		query += ` WHERE l.user_id = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY l.id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []leave.Info
	for rows.Next() {
		var info leave.Info
		var typ, status, start, end string
		if err := rows.Scan(&info.LeaveID, &info.UserID, &info.Username, &typ, &status, &start, &end); err != nil {
			return nil, err
		}
		info.Type = leave.LeaveType(typ)
		info.Status = leave.Status(status)
		if info.Range.Start, err = calendar.ParseDate(start); err != nil {
			return nil, err
		}
		if info.Range.End, err = calendar.ParseDate(end); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *queries) ListLeavesStarting(ctx context.Context, day calendar.Date, status leave.Status) ([]leave.Leave, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, user_id, type, start_date, end_date, status, using_days, created_at
		 FROM leaves WHERE status = ? AND start_date = ? ORDER BY id`,
		string(status), day.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Leave
	for rows.Next() {
		var l leave.Leave
		var typ, start, end, st, using, created string
		if err := rows.Scan(&l.ID, &l.UserID, &typ, &start, &end, &st, &using, &created); err != nil {
			return nil, err
		}
		if err := decodeLeave(&l, typ, start, end, st, using, created); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Alarms
// -----------------------------------------------------------------------------

func (s *queries) SaveAlarm(ctx context.Context, a *leave.Alarm) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := s.q.ExecContext(ctx,
		`INSERT INTO alarms (user_id, leave_id, message, created_at) VALUES (?, ?, ?, ?)`,
		a.UserID, a.LeaveID, a.Message, a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (s *queries) ListAlarms(ctx context.Context, userID int64, status leave.Status) ([]leave.Alarm, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT a.id, a.user_id, a.leave_id, a.message, a.created_at
		 FROM alarms a JOIN leaves l ON l.id = a.leave_id
		 WHERE a.user_id = ? AND l.status = ? ORDER BY a.id`,
		userID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Alarm
	for rows.Next() {
		var a leave.Alarm
		var created string
		if err := rows.Scan(&a.ID, &a.UserID, &a.LeaveID, &a.Message, &created); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row *sql.Row) (*leave.User, error) {
	u, err := scanUserFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func scanUserFrom(sc rowScanner) (*leave.User, error) {
	var u leave.User
	var role, remain, created string
	var active int
	if err := sc.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &remain, &active, &created); err != nil {
		return nil, err
	}
	u.Role = leave.Role(role)
	u.Active = active != 0

	value, err := decimal.NewFromString(remain)
	if err != nil {
		return nil, fmt.Errorf("corrupt remain_days for user %d: %w", u.ID, err)
	}
	u.RemainDays = leave.Days{Value: value}

	if u.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, err
	}
	return &u, nil
}

func decodeLeave(l *leave.Leave, typ, start, end, status, using, created string) error {
	l.Type = leave.LeaveType(typ)
	l.Status = leave.Status(status)

	var err error
	if l.Range.Start, err = calendar.ParseDate(start); err != nil {
		return err
	}
	if l.Range.End, err = calendar.ParseDate(end); err != nil {
		return err
	}

	value, err := decimal.NewFromString(using)
	if err != nil {
		return fmt.Errorf("corrupt using_days for leave %d: %w", l.ID, err)
	}
	l.UsingDays = leave.Days{Value: value}

	if l.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return err
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
