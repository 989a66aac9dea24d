package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/event-registration/internal/model"
)

// ErrEventNotFound is returned when the requested event does not
// exist. Handlers should translate this into an HTTP 404 response.
var ErrEventNotFound = errors.New("event not found")

// EventRepo provides access to the events and event_organizers
// tables. Occupancy and status writes happen only through the Store
// transaction methods in store.go, under the event's row lock; this
// repo covers creation, browsing and detail edits.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns an EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// spanning multiple repositories.
func (r *EventRepo) DB() *sql.DB { return r.db }

// Create inserts a new event owned by its organizer and populates the
// generated ID and timestamps on the passed struct. Events start with
// zero occupancy; Status and Capacity must already be validated by
// the caller.
func (r *EventRepo) Create(ctx context.Context, ev *model.Event) error {
	var startsAt interface{}
	if ev.StartsAt != nil {
		startsAt = ev.StartsAt.UTC().Format("2006-01-02 15:04:05")
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO events (organizer_id, name, description, status, capacity, occupancy, starts_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		ev.OrganizerID, ev.Name, ev.Description, ev.Status, ev.Capacity, startsAt)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = uint64(id)
	// Query back the row to populate defaults and timestamps.
	fresh, err := r.GetByID(ctx, ev.ID)
	if err != nil {
		return err
	}
	*ev = *fresh
	return nil
}

// GetByID returns a single event with its organizer set populated, or
// ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id uint64) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, selectEvent+` WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	ev.OrganizerIDs, err = r.organizerIDs(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListPublic returns all non-draft events, newest first. Draft events
// are only visible to their organizers via ListByOrganizer.
func (r *EventRepo) ListPublic(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		selectEvent+` WHERE status <> ? ORDER BY created_at DESC`, model.StatusDraft)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListByOrganizer returns every event the user organizes, drafts
// included, newest first.
func (r *EventRepo) ListByOrganizer(ctx context.Context, userID uint64) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		selectEvent+` WHERE organizer_id = ?
		   OR id IN (SELECT event_id FROM event_organizers WHERE user_id = ?)
		 ORDER BY created_at DESC`,
		userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// UpdateDetails changes the presentational fields of an event after
// verifying organizer authority. Capacity, occupancy and status are
// deliberately excluded: those go through the admission service.
// Returns ErrEventNotFound or ErrForbidden accordingly.
func (r *EventRepo) UpdateDetails(ctx context.Context, id, actorID uint64, isAdmin bool, name, description string, startsAt *time.Time) (*model.Event, error) {
	ev, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && !ev.IsOrganizer(actorID) {
		return nil, ErrForbidden
	}
	var starts interface{}
	if startsAt != nil {
		starts = startsAt.UTC().Format("2006-01-02 15:04:05")
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE events SET name = ?, description = ?, starts_at = ? WHERE id = ?`,
		name, description, starts, id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// AddOrganizer grants co-organizer authority over the event. The
// insert is idempotent.
func (r *EventRepo) AddOrganizer(ctx context.Context, eventID, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO event_organizers (event_id, user_id) VALUES (?, ?)`,
		eventID, userID)
	return err
}

// queryer lets the organizer lookup run against either the pool or an
// open transaction.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *EventRepo) organizerIDs(ctx context.Context, q queryer, eventID uint64) ([]uint64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM event_organizers WHERE event_id = ? ORDER BY user_id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const selectEvent = `SELECT id, organizer_id, name, description, status, capacity, occupancy, starts_at, created_at, updated_at FROM events`

// rowScanner abstracts *sql.Row and *sql.Rows for scanEvent.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		ev       model.Event
		startsAt sql.NullTime
	)
	err := row.Scan(&ev.ID, &ev.OrganizerID, &ev.Name, &ev.Description, &ev.Status,
		&ev.Capacity, &ev.Occupancy, &startsAt, &ev.CreatedAt, &ev.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if startsAt.Valid {
		t := startsAt.Time.UTC()
		ev.StartsAt = &t
	}
	return &ev, nil
}

func collectEvents(rows *sql.Rows) ([]model.Event, error) {
	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}
