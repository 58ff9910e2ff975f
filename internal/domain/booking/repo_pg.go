package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agendamiento/citas/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Unique constraint names from the migrations. The database is the final
// arbiter for slot and active-appointment races; violations are translated
// into domain errors here.
const (
	constraintSlot      = "ux_appointment_slot"
	constraintActiveDoc = "ux_appointment_active_doc"
	constraintOutcome   = "ux_outcome_appointment"
	constraintCode      = "ux_outcome_code"
)

func uniqueViolation(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr
	}
	return nil
}

// =========== Appointment Repository ===========

type apptRepoPG struct{ pool *pgxpool.Pool }

// NewAppointmentRepoPG creates a Postgres-backed appointment repository.
func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &apptRepoPG{pool: pool}
}

func (r *apptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, appt_date, start_time, end_time, status, channel, topic, notes,
	requester_id, staff_user_id, document_type, document_number,
	meeting_event_id, meeting_join_url, cancelled_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Date, &a.Start, &a.End, &a.Status, &a.Channel, &a.Topic, &a.Notes,
		&a.RequesterID, &a.StaffUserID, &a.DocumentType, &a.DocumentNumber,
		&a.MeetingEventID, &a.MeetingJoinURL, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *apptRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, appt_date, start_time, end_time, status, channel, topic, notes,
			requester_id, staff_user_id, document_type, document_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING created_at, updated_at`,
		a.ID, a.Date, a.Start, a.End, a.Status, a.Channel, a.Topic, a.Notes,
		a.RequesterID, a.StaffUserID, a.DocumentType, a.DocumentNumber,
	).Scan(&a.CreatedAt, &a.UpdatedAt)

	if pgErr := uniqueViolation(err); pgErr != nil {
		switch pgErr.ConstraintName {
		case constraintSlot:
			return &ConflictError{Message: "el horario seleccionado ya fue tomado"}
		case constraintActiveDoc:
			return &ConflictError{Message: "el documento ya tiene una cita vigente"}
		}
		return &ConflictError{Message: "la cita entra en conflicto con otra reserva"}
	}
	return err
}

func (r *apptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *apptRepoPG) ActiveByDocument(ctx context.Context, docType, docNumber string, from time.Time) (*Appointment, error) {
	return scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment
		 WHERE document_type = $1 AND document_number = $2
		   AND status = $3 AND start_time >= $4
		 ORDER BY start_time LIMIT 1`,
		docType, docNumber, StatusScheduled, from))
}

func (r *apptRepoPG) ListByDay(ctx context.Context, date time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE appt_date = $1 ORDER BY start_time`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

func (r *apptRepoPG) ScheduledStarts(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT start_time FROM appointment
		 WHERE status = $1 AND start_time >= $2 AND start_time < $3`,
		StatusScheduled, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		starts = append(starts, t)
	}
	return starts, nil
}

func (r *apptRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, cancelledAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status = $2, cancelled_at = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		id, status, cancelledAt, StatusScheduled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotCancellableError{Message: "la cita ya no está vigente"}
	}
	return nil
}

func (r *apptRepoPG) Reschedule(ctx context.Context, id uuid.UUID, date, start, end time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET appt_date = $2, start_time = $3, end_time = $4, updated_at = NOW()
		 WHERE id = $1 AND status = $5`,
		id, date, start, end, StatusScheduled)
	if pgErr := uniqueViolation(err); pgErr != nil {
		return &ConflictError{Message: "el horario seleccionado ya fue tomado"}
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotCancellableError{Message: "solo las citas vigentes pueden reprogramarse"}
	}
	return nil
}

func (r *apptRepoPG) SetMeeting(ctx context.Context, id uuid.UUID, eventID, joinURL string) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET meeting_event_id = $2, meeting_join_url = $3, updated_at = NOW() WHERE id = $1`,
		id, eventID, joinURL)
	return err
}

func (r *apptRepoPG) ClearMeeting(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET meeting_event_id = NULL, meeting_join_url = NULL, updated_at = NOW() WHERE id = $1`,
		id)
	return err
}

// =========== Outcome Repository ===========

type outcomeRepoPG struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

// NewOutcomeRepoPG creates a Postgres-backed outcome repository. The location
// anchors the daily code sequence to local civil dates.
func NewOutcomeRepoPG(pool *pgxpool.Pool, loc *time.Location) OutcomeRepository {
	return &outcomeRepoPG{pool: pool, loc: loc}
}

const outcomeCols = `id, appointment_id, code, result, notes, recorded_by, created_at`

func scanOutcome(row pgx.Row) (*Outcome, error) {
	var o Outcome
	err := row.Scan(&o.ID, &o.AppointmentID, &o.Code, &o.Result, &o.Notes, &o.RecordedBy, &o.CreatedAt)
	return &o, err
}

// nextCode computes the next INT-YYYYMMDD-NNNN code for today, locking the
// current maximum so concurrent recorders serialize. The unique index on code
// backstops the race when the day has no outcomes yet.
func nextCode(ctx context.Context, q queryable, day time.Time) (string, error) {
	prefix := "INT-" + day.Format("20060102") + "-"

	var last string
	err := q.QueryRow(ctx,
		`SELECT code FROM outcome WHERE code LIKE $1 ORDER BY code DESC LIMIT 1 FOR UPDATE`,
		prefix+"%").Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return prefix + "0001", nil
	}
	if err != nil {
		return "", err
	}

	seq, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
	if err != nil {
		return "", fmt.Errorf("malformed outcome code %q: %w", last, err)
	}
	return fmt.Sprintf("%s%04d", prefix, seq+1), nil
}

func (r *outcomeRepoPG) Record(ctx context.Context, o *Outcome) error {
	// Retries cover the first-outcome-of-the-day race, where two recorders
	// both compute 0001 and one loses on the code unique index.
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
			tx := db.TxFromContext(ctx)

			code, err := nextCode(ctx, tx, time.Now().In(r.loc))
			if err != nil {
				return err
			}

			o.ID = uuid.New()
			o.Code = code
			if err := tx.QueryRow(ctx, `
				INSERT INTO outcome (id, appointment_id, code, result, notes, recorded_by)
				VALUES ($1,$2,$3,$4,$5,$6)
				RETURNING created_at`,
				o.ID, o.AppointmentID, o.Code, o.Result, o.Notes, o.RecordedBy,
			).Scan(&o.CreatedAt); err != nil {
				return err
			}

			tag, err := tx.Exec(ctx,
				`UPDATE appointment SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
				o.AppointmentID, o.Result, StatusScheduled)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return &AlreadyRecordedError{}
			}
			return nil
		})

		if pgErr := uniqueViolation(err); pgErr != nil {
			if pgErr.ConstraintName == constraintOutcome {
				return &AlreadyRecordedError{}
			}
			if pgErr.ConstraintName == constraintCode {
				lastErr = err
				continue
			}
		}
		return err
	}
	return lastErr
}

func (r *outcomeRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Outcome, error) {
	return scanOutcome(r.pool.QueryRow(ctx,
		`SELECT `+outcomeCols+` FROM outcome WHERE appointment_id = $1`, appointmentID))
}

func (r *outcomeRepoPG) ListByDay(ctx context.Context, date time.Time) ([]*Outcome, error) {
	prefix := "INT-" + date.In(r.loc).Format("20060102") + "-"
	rows, err := r.pool.Query(ctx,
		`SELECT `+outcomeCols+` FROM outcome WHERE code LIKE $1 ORDER BY code`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, nil
}

// =========== Availability Block Repository ===========

type blockRepoPG struct{ pool *pgxpool.Pool }

// NewBlockRepoPG creates a Postgres-backed availability block repository.
func NewBlockRepoPG(pool *pgxpool.Pool) BlockRepository {
	return &blockRepoPG{pool: pool}
}

func (r *blockRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const blockCols = `id, block_date, start_time, reason, created_by, created_at`

func scanBlock(row pgx.Row) (*AvailabilityBlock, error) {
	var b AvailabilityBlock
	err := row.Scan(&b.ID, &b.Date, &b.StartTime, &b.Reason, &b.CreatedBy, &b.CreatedAt)
	return &b, err
}

func (r *blockRepoPG) Create(ctx context.Context, b *AvailabilityBlock) error {
	b.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_block (id, block_date, start_time, reason, created_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		b.ID, b.Date, b.StartTime, b.Reason, b.CreatedBy,
	).Scan(&b.CreatedAt)
	if uniqueViolation(err) != nil {
		return &ConflictError{Message: "el bloqueo ya existe para esa fecha y hora"}
	}
	return err
}

func (r *blockRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_block WHERE id = $1`, id)
	return err
}

func (r *blockRepoPG) ListInRange(ctx context.Context, from, to time.Time) ([]*AvailabilityBlock, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+blockCols+` FROM availability_block
		 WHERE block_date >= $1 AND block_date <= $2 ORDER BY block_date, start_time`,
		from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*AvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, nil
}
