package requester

import (
	"context"

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

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates a Postgres-backed requester repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const requesterCols = `id, document_type, document_number, first_name, last_name, phone, email,
	sex, gender, sexual_orientation, age_range, education_level, ethnic_group,
	population_group, stratum, locality, contact_capacity, has_disability, disability_type,
	created_at`

func scanRequester(row pgx.Row) (*Requester, error) {
	var q Requester
	err := row.Scan(&q.ID, &q.DocumentType, &q.DocumentNumber, &q.FirstName, &q.LastName,
		&q.Phone, &q.Email,
		&q.Sex, &q.Gender, &q.SexualOrientation, &q.AgeRange, &q.EducationLevel,
		&q.EthnicGroup, &q.PopulationGroup, &q.Stratum, &q.Locality, &q.ContactCapacity,
		&q.HasDisability, &q.DisabilityType, &q.CreatedAt)
	return &q, err
}

func (r *repoPG) Create(ctx context.Context, q *Requester) error {
	q.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO requester (id, document_type, document_number, first_name, last_name, phone, email,
			sex, gender, sexual_orientation, age_range, education_level, ethnic_group,
			population_group, stratum, locality, contact_capacity, has_disability, disability_type)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at`,
		q.ID, q.DocumentType, q.DocumentNumber, q.FirstName, q.LastName, q.Phone, q.Email,
		q.Sex, q.Gender, q.SexualOrientation, q.AgeRange, q.EducationLevel, q.EthnicGroup,
		q.PopulationGroup, q.Stratum, q.Locality, q.ContactCapacity, q.HasDisability, q.DisabilityType,
	).Scan(&q.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Requester, error) {
	return scanRequester(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requesterCols+` FROM requester WHERE id = $1`, id))
}

func (r *repoPG) Latest(ctx context.Context, docType, docNumber string) (*Requester, error) {
	return scanRequester(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requesterCols+` FROM requester
		 WHERE document_type = $1 AND document_number = $2
		 ORDER BY created_at DESC LIMIT 1`, docType, docNumber))
}

func (r *repoPG) History(ctx context.Context, docType, docNumber string, limit, offset int) ([]*Requester, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM requester WHERE document_type = $1 AND document_number = $2`,
		docType, docNumber).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requesterCols+` FROM requester
		 WHERE document_type = $1 AND document_number = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		docType, docNumber, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Requester
	for rows.Next() {
		q, err := scanRequester(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, q)
	}
	return items, total, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM requester WHERE id = $1`, id)
	return err
}
