package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// schema holds the table and every index the registrar relies on.
// attendance_slot_unique is the constraint that closes the check-then-insert race.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id                 UUID PRIMARY KEY,
		student_id         TEXT NOT NULL,
		qr_student_id      TEXT NOT NULL DEFAULT '',
		student_name       TEXT NOT NULL,
		student_email      TEXT NOT NULL DEFAULT '',
		student_phone      TEXT NOT NULL DEFAULT '',
		student_college    TEXT NOT NULL DEFAULT '',
		student_grade      TEXT NOT NULL DEFAULT '',
		student_major      TEXT NOT NULL DEFAULT '',
		student_address    TEXT NOT NULL DEFAULT '',
		attendance_date    TIMESTAMPTZ NOT NULL,
		date_key           TEXT NOT NULL,
		appointment_slot   TEXT NOT NULL CHECK (appointment_slot IN ('first', 'second')),
		check_in_time      TIMESTAMPTZ NOT NULL,
		scan_timestamp     TIMESTAMPTZ NOT NULL,
		supervisor_id      TEXT NOT NULL,
		supervisor_name    TEXT NOT NULL,
		concurrent_scan_id UUID NOT NULL,
		status             TEXT NOT NULL DEFAULT 'Present',
		station_info       JSONB,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_slot_unique
		ON attendance_records (student_id, appointment_slot, date_key)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS attendance_concurrent_scan_unique
		ON attendance_records (concurrent_scan_id)`,
	`CREATE INDEX IF NOT EXISTS attendance_student_slot_date
		ON attendance_records (student_id, appointment_slot, attendance_date)`,
	`CREATE INDEX IF NOT EXISTS attendance_qr_student_slot_date
		ON attendance_records (qr_student_id, appointment_slot, attendance_date)`,
	`CREATE INDEX IF NOT EXISTS attendance_supervisor_date
		ON attendance_records (supervisor_id, attendance_date)`,
	`CREATE INDEX IF NOT EXISTS attendance_date_status
		ON attendance_records (attendance_date, status)`,
}

const recordColumns = `id, student_id, qr_student_id, student_name, student_email, student_phone,
	student_college, student_grade, student_major, student_address, attendance_date, date_key,
	appointment_slot, check_in_time, scan_timestamp, supervisor_id, supervisor_name,
	concurrent_scan_id, status, station_info`

// PostgresStore persists attendance records in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open pgx-backed sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureIndexes creates the table and indexes if missing.
func (p *PostgresStore) EnsureIndexes(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// FindForSlot implements Store.
func (p *PostgresStore) FindForSlot(ctx context.Context, l Lookup) (*Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records
		WHERE (student_id = $1 OR qr_student_id = $1)
		  AND appointment_slot = $2
		  AND attendance_date BETWEEN $3 AND $4
		ORDER BY check_in_time ASC
		LIMIT 1
	`, l.StudentID, string(l.Slot), l.Start, l.End)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Insert implements Store.
func (p *PostgresStore) Insert(ctx context.Context, rec Record) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20::jsonb)
	`, rec.ID, rec.StudentID, rec.QRStudentID, rec.StudentName, rec.StudentEmail, rec.StudentPhone,
		rec.StudentCollege, rec.StudentGrade, rec.StudentMajor, rec.StudentAddress, rec.Date, rec.DateKey,
		string(rec.AppointmentSlot), rec.CheckInTime, rec.ScanTimestamp, rec.SupervisorID, rec.SupervisorName,
		rec.ConcurrentScanID, rec.Status, nullableJSON(rec.StationInfo))
	if isUniqueViolation(err) {
		return fmt.Errorf("insert attendance %s: %w", rec.ID, ErrDuplicateKey)
	}
	return err
}

// List implements Store.
func (p *PostgresStore) List(ctx context.Context, f Filter) ([]Record, error) {
	f = f.normalized()
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.SupervisorID != "" {
		clauses = append(clauses, "supervisor_id = "+arg(f.SupervisorID))
	}
	if !f.Start.IsZero() {
		clauses = append(clauses, "attendance_date >= "+arg(f.Start))
	}
	if !f.End.IsZero() {
		clauses = append(clauses, "attendance_date <= "+arg(f.End))
	}
	if f.Status != "" {
		clauses = append(clauses, "status = "+arg(f.Status))
	}

	query := `SELECT ` + recordColumns + ` FROM attendance_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY check_in_time DESC LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// CountBySlot implements Store.
func (p *PostgresStore) CountBySlot(ctx context.Context, start, end time.Time) ([]SlotCount, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT appointment_slot, COUNT(*)
		FROM attendance_records
		WHERE attendance_date BETWEEN $1 AND $2 AND status = $3
		GROUP BY appointment_slot
	`, start, end, StatusPresent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[Slot]int64{}
	for rows.Next() {
		var (
			slot string
			n    int64
		)
		if err := rows.Scan(&slot, &n); err != nil {
			return nil, err
		}
		counts[Slot(slot)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return slotCounts(counts), nil
}

// Ping implements Store.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close implements Store.
func (p *PostgresStore) Close(context.Context) error {
	return p.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec     Record
		slot    string
		station sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.QRStudentID, &rec.StudentName, &rec.StudentEmail,
		&rec.StudentPhone, &rec.StudentCollege, &rec.StudentGrade, &rec.StudentMajor, &rec.StudentAddress,
		&rec.Date, &rec.DateKey, &slot, &rec.CheckInTime, &rec.ScanTimestamp, &rec.SupervisorID,
		&rec.SupervisorName, &rec.ConcurrentScanID, &rec.Status, &station)
	if err != nil {
		return Record{}, err
	}
	rec.AppointmentSlot = Slot(slot)
	if station.Valid {
		rec.StationInfo = []byte(station.String)
	}
	return rec, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
