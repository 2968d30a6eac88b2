package store

import (
	"database/sql"
	"fmt"
)

// Tardy request statuses. Transitions only ever go pending -> approved or
// pending -> rejected; DecideTardy enforces that at the SQL level.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type User struct {
	TGID           string
	Passport       string
	Birthdate      string
	FullName       string
	RegisteredAt   string
	IsManager      bool
	SupervisorTGID string
}

type TardyRequest struct {
	ID           int64
	EmployeeTGID string
	ManagerTGID  string
	Reason       string
	StartTime    string
	EndTime      string
	SubmittedAt  string
	Status       string
}

// GetUser returns nil when the user is not registered.
func (d *DB) GetUser(tgID string) (*User, error) {
	row := d.QueryRow(`
		SELECT tg_id, passport, birthdate, full_name, registered_at, is_manager, supervisor_tg_id
		FROM users WHERE tg_id = ?`, tgID)

	var (
		u                                                User
		passport, birthdate, fullName, regAt, supervisor sql.NullString
		isManager                                        sql.NullInt64
	)
	err := row.Scan(&u.TGID, &passport, &birthdate, &fullName, &regAt, &isManager, &supervisor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", tgID, err)
	}

	u.Passport = passport.String
	u.Birthdate = birthdate.String
	u.FullName = fullName.String
	u.RegisteredAt = regAt.String
	u.IsManager = isManager.Int64 != 0
	u.SupervisorTGID = supervisor.String
	return &u, nil
}

// UpsertUser replaces the whole row, matching the 1C check being the source
// of truth for name, manager flag and supervisor.
func (d *DB) UpsertUser(u *User) error {
	_, err := d.Exec(`
		INSERT INTO users (tg_id, passport, birthdate, full_name, registered_at, is_manager, supervisor_tg_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tg_id) DO UPDATE SET
			passport=excluded.passport,
			birthdate=excluded.birthdate,
			full_name=excluded.full_name,
			registered_at=excluded.registered_at,
			is_manager=excluded.is_manager,
			supervisor_tg_id=excluded.supervisor_tg_id`,
		u.TGID, u.Passport, u.Birthdate, u.FullName, u.RegisteredAt,
		boolToInt(u.IsManager), nullable(u.SupervisorTGID))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.TGID, err)
	}
	return nil
}

func (d *DB) DeleteUser(tgID string) error {
	_, err := d.Exec("DELETE FROM users WHERE tg_id = ?", tgID)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", tgID, err)
	}
	return nil
}

// SetSupervisor stores the supervisor's Telegram ID; an empty value clears it.
func (d *DB) SetSupervisor(tgID, supervisorTGID string) error {
	_, err := d.Exec("UPDATE users SET supervisor_tg_id = ? WHERE tg_id = ?",
		nullable(supervisorTGID), tgID)
	if err != nil {
		return fmt.Errorf("set supervisor for %s: %w", tgID, err)
	}
	return nil
}

func (d *DB) CreateTardyRequest(employeeTGID, managerTGID, reason, startHM, endHM, submittedAt string) (int64, error) {
	res, err := d.Exec(`
		INSERT INTO tardy_requests (employee_tg_id, manager_tg_id, reason, start_time, end_time, submitted_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		employeeTGID, managerTGID, reason, nullable(startHM), nullable(endHM), submittedAt, StatusPending)
	if err != nil {
		return 0, fmt.Errorf("create tardy request: %w", err)
	}
	return res.LastInsertId()
}

// GetTardy returns nil when the request does not exist.
func (d *DB) GetTardy(id int64) (*TardyRequest, error) {
	row := d.QueryRow(`
		SELECT id, employee_tg_id, manager_tg_id, reason, start_time, end_time, submitted_at, status
		FROM tardy_requests WHERE id = ?`, id)

	r, err := scanTardy(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tardy request %d: %w", id, err)
	}
	return r, nil
}

// PendingForManager lists undecided requests addressed to a manager, newest
// submissions first.
func (d *DB) PendingForManager(managerTGID string) ([]TardyRequest, error) {
	rows, err := d.Query(`
		SELECT id, employee_tg_id, manager_tg_id, reason, start_time, end_time, submitted_at, status
		FROM tardy_requests
		WHERE manager_tg_id = ? AND status = ?
		ORDER BY submitted_at DESC`, managerTGID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending requests for %s: %w", managerTGID, err)
	}
	defer rows.Close()

	var out []TardyRequest
	for rows.Next() {
		r, err := scanTardy(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DecideTardy moves a pending request to its final status. Returns false
// when the request is missing or was already decided (e.g. a second click
// on a stale inline keyboard).
func (d *DB) DecideTardy(id int64, status string) (bool, error) {
	res, err := d.Exec(
		"UPDATE tardy_requests SET status = ? WHERE id = ? AND status = ?",
		status, id, StatusPending)
	if err != nil {
		return false, fmt.Errorf("decide tardy request %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanTardy(scan func(dest ...any) error) (*TardyRequest, error) {
	var (
		r                   TardyRequest
		manager, start, end sql.NullString
	)
	err := scan(&r.ID, &r.EmployeeTGID, &manager, &r.Reason, &start, &end, &r.SubmittedAt, &r.Status)
	if err != nil {
		return nil, err
	}
	r.ManagerTGID = manager.String
	r.StartTime = start.String
	r.EndTime = end.String
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
