package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// AttendeeRepo provides access to the attendees table. The write
// methods all take an open transaction because attendee rows are only
// ever mutated together with the owning event's occupancy counter,
// under that event's row lock. Timestamps are stored in UTC.
type AttendeeRepo struct {
	db *sql.DB
}

// NewAttendeeRepo returns an AttendeeRepo bound to the given database.
func NewAttendeeRepo(db *sql.DB) *AttendeeRepo { return &AttendeeRepo{db: db} }

const selectAttendee = `SELECT id, event_id, user_id, status, registered_at, cancelled_at FROM attendees`

// ActiveByEventAndUserTx returns the single non-cancelled record for
// the (event, user) pair within the transaction, or nil when the user
// holds no active registration.
func (r *AttendeeRepo) ActiveByEventAndUserTx(ctx context.Context, tx *sql.Tx, eventID, userID uint64) (*model.Attendee, error) {
	row := tx.QueryRowContext(ctx,
		selectAttendee+` WHERE event_id = ? AND user_id = ? AND status <> ? LIMIT 1`,
		eventID, userID, model.AttendeeCancelled)
	a, err := scanAttendee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// CreateTx inserts a new attendee record within the transaction and
// populates the generated ID. Status and RegisteredAt must be set by
// the caller; registered_at is never mutated afterwards because it is
// the waitlist ordering key.
func (r *AttendeeRepo) CreateTx(ctx context.Context, tx *sql.Tx, a *model.Attendee) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO attendees (event_id, user_id, status, registered_at) VALUES (?, ?, ?, ?)`,
		a.EventID, a.UserID, a.Status, a.RegisteredAt.UTC().Format("2006-01-02 15:04:05.000000"))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = uint64(id)
	return nil
}

// CancelTx marks the record as cancelled at the given time. The row
// is kept for history; a new registration by the same user creates a
// fresh record.
func (r *AttendeeRepo) CancelTx(ctx context.Context, tx *sql.Tx, attendeeID uint64, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE attendees SET status = ?, cancelled_at = ? WHERE id = ?`,
		model.AttendeeCancelled, at.UTC().Format("2006-01-02 15:04:05.000000"), attendeeID)
	return err
}

// PromoteTx moves a waitlisted record to REGISTERED. The status guard
// keeps a concurrent cancellation from resurrecting the record.
func (r *AttendeeRepo) PromoteTx(ctx context.Context, tx *sql.Tx, attendeeID uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE attendees SET status = ? WHERE id = ? AND status = ?`,
		model.AttendeeRegistered, attendeeID, model.AttendeeWaitlisted)
	return err
}

// EarliestWaitlistedTx returns the next attendee in promotion order
// for the event, or nil when the waitlist is empty. Promotion order
// is registered_at ascending with the row id as a total tie-break.
func (r *AttendeeRepo) EarliestWaitlistedTx(ctx context.Context, tx *sql.Tx, eventID uint64) (*model.Attendee, error) {
	row := tx.QueryRowContext(ctx,
		selectAttendee+` WHERE event_id = ? AND status = ?
		 ORDER BY registered_at ASC, id ASC LIMIT 1`,
		eventID, model.AttendeeWaitlisted)
	a, err := scanAttendee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListByEvent returns all non-cancelled attendees for the event:
// registered first, then the waitlist in promotion order.
func (r *AttendeeRepo) ListByEvent(ctx context.Context, eventID uint64) ([]model.Attendee, error) {
	rows, err := r.db.QueryContext(ctx,
		selectAttendee+` WHERE event_id = ? AND status <> ?
		 ORDER BY FIELD(status, ?, ?), registered_at ASC, id ASC`,
		eventID, model.AttendeeCancelled, model.AttendeeRegistered, model.AttendeeWaitlisted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	attendees := make([]model.Attendee, 0)
	for rows.Next() {
		a, err := scanAttendee(rows)
		if err != nil {
			return nil, err
		}
		attendees = append(attendees, *a)
	}
	return attendees, rows.Err()
}

// RegistrationDetail is a registration joined with a summary of its
// event, returned by ListByUser for display to the registering user.
type RegistrationDetail struct {
	ID           uint64  `json:"id"`
	EventID      uint64  `json:"event_id"`
	Status       string  `json:"status"`
	RegisteredAt string  `json:"registered_at"`
	EventName    string  `json:"event_name"`
	EventStatus  string  `json:"event_status"`
	StartsAt     *string `json:"starts_at,omitempty"`
}

// ListByUser returns the user's non-cancelled registrations with event
// summaries, newest first.
func (r *AttendeeRepo) ListByUser(ctx context.Context, userID uint64) ([]RegistrationDetail, error) {
	const q = `SELECT a.id, a.event_id, a.status, a.registered_at, e.name, e.status, e.starts_at
	           FROM attendees a
	           JOIN events e ON e.id = a.event_id
	           WHERE a.user_id = ? AND a.status <> ?
	           ORDER BY a.registered_at DESC`
	rows, err := r.db.QueryContext(ctx, q, userID, model.AttendeeCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := make([]RegistrationDetail, 0)
	for rows.Next() {
		var (
			d            RegistrationDetail
			registeredAt time.Time
			startsAt     sql.NullTime
		)
		if err := rows.Scan(&d.ID, &d.EventID, &d.Status, &registeredAt,
			&d.EventName, &d.EventStatus, &startsAt); err != nil {
			return nil, err
		}
		d.RegisteredAt = registeredAt.UTC().Format(time.RFC3339)
		if startsAt.Valid {
			iso := startsAt.Time.UTC().Format(time.RFC3339)
			d.StartsAt = &iso
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func scanAttendee(row rowScanner) (*model.Attendee, error) {
	var (
		a           model.Attendee
		cancelledAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.EventID, &a.UserID, &a.Status, &a.RegisteredAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	a.RegisteredAt = a.RegisteredAt.UTC()
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		a.CancelledAt = &t
	}
	return &a, nil
}
