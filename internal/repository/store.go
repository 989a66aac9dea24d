package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/event-registration/internal/admission"
	"github.com/iliyamo/event-registration/internal/model"
)

// Store implements admission.Store on MySQL. The per-event exclusive
// lock required by the admission workflow is the row lock taken by
// SELECT ... FOR UPDATE on the events row, so admissions for one
// event serialize while unrelated events proceed independently.
type Store struct {
	db        *sql.DB
	events    *EventRepo
	attendees *AttendeeRepo
}

// NewStore builds a Store from the shared repositories.
func NewStore(db *sql.DB, events *EventRepo, attendees *AttendeeRepo) *Store {
	if db == nil || events == nil || attendees == nil {
		panic("nil dependency passed to NewStore")
	}
	return &Store{db: db, events: events, attendees: attendees}
}

// Begin opens a transaction for one unit of admission work.
func (s *Store) Begin(ctx context.Context) (admission.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, translateErr(err)
	}
	return &storeTx{tx: tx, store: s}, nil
}

// storeTx adapts *sql.Tx to the admission.Tx contract, translating
// driver errors into the admission taxonomy.
type storeTx struct {
	tx    *sql.Tx
	store *Store
}

func (t *storeTx) EventForUpdate(ctx context.Context, eventID uint64) (*model.Event, error) {
	ev, err := scanEvent(t.tx.QueryRowContext(ctx,
		selectEvent+` WHERE id = ? FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, admission.ErrEventNotFound
		}
		return nil, translateErr(err)
	}
	ev.OrganizerIDs, err = t.store.events.organizerIDs(ctx, t.tx, eventID)
	if err != nil {
		return nil, translateErr(err)
	}
	return ev, nil
}

func (t *storeTx) ActiveAttendee(ctx context.Context, eventID, userID uint64) (*model.Attendee, error) {
	a, err := t.store.attendees.ActiveByEventAndUserTx(ctx, t.tx, eventID, userID)
	return a, translateErr(err)
}

func (t *storeTx) InsertAttendee(ctx context.Context, a *model.Attendee) error {
	return translateErr(t.store.attendees.CreateTx(ctx, t.tx, a))
}

func (t *storeTx) MarkCancelled(ctx context.Context, attendeeID uint64, at time.Time) error {
	return translateErr(t.store.attendees.CancelTx(ctx, t.tx, attendeeID, at))
}

func (t *storeTx) MarkRegistered(ctx context.Context, attendeeID uint64) error {
	return translateErr(t.store.attendees.PromoteTx(ctx, t.tx, attendeeID))
}

func (t *storeTx) EarliestWaitlisted(ctx context.Context, eventID uint64) (*model.Attendee, error) {
	a, err := t.store.attendees.EarliestWaitlistedTx(ctx, t.tx, eventID)
	return a, translateErr(err)
}

func (t *storeTx) UpdateEventOccupancy(ctx context.Context, eventID uint64, occupancy uint32) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE events SET occupancy = ? WHERE id = ?`, occupancy, eventID)
	return translateErr(err)
}

func (t *storeTx) UpdateEventStatus(ctx context.Context, eventID uint64, status model.EventStatus) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE events SET status = ? WHERE id = ?`, status, eventID)
	return translateErr(err)
}

func (t *storeTx) UpdateEventCapacity(ctx context.Context, eventID uint64, capacity uint32) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE events SET capacity = ? WHERE id = ?`, capacity, eventID)
	return translateErr(err)
}

func (t *storeTx) Commit() error   { return translateErr(t.tx.Commit()) }
func (t *storeTx) Rollback() error { return t.tx.Rollback() }

// MySQL error numbers signalling lock contention. Both resolve after
// the losing transaction restarts, so they map to the retryable
// admission.ErrConflict.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var my *mysql.MySQLError
	if errors.As(err, &my) {
		if my.Number == mysqlErrDeadlock || my.Number == mysqlErrLockWaitTimeout {
			return admission.ErrConflict
		}
	}
	return err
}
