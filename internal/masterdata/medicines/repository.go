package medicines

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists medicines.
type Repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Medicine, int, error)
	Get(ctx context.Context, id int64) (Medicine, error)
	Create(ctx context.Context, m Medicine) (Medicine, error)
	Update(ctx context.Context, id int64, m Medicine) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, search string, limit, offset int) ([]Medicine, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM medicines `+where, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, code, name, manufacturer, unit, is_active
FROM medicines `+where+` ORDER BY name LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Medicine{}
	for rows.Next() {
		var m Medicine
		if err := rows.Scan(&m.ID, &m.Code, &m.Name, &m.Manufacturer, &m.Unit, &m.IsActive); err != nil {
			return nil, 0, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Medicine, error) {
	var m Medicine
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, manufacturer, unit, is_active
FROM medicines WHERE id=$1`, id).Scan(&m.ID, &m.Code, &m.Name, &m.Manufacturer, &m.Unit, &m.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Medicine{}, ErrNotFound
		}
		return Medicine{}, err
	}
	return m, nil
}

func (r *repository) Create(ctx context.Context, m Medicine) (Medicine, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO medicines (code, name, manufacturer, unit, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		m.Code, m.Name, m.Manufacturer, m.Unit, m.IsActive).Scan(&m.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Medicine{}, ErrDuplicateCode
		}
		return Medicine{}, err
	}
	return m, nil
}

func (r *repository) Update(ctx context.Context, id int64, m Medicine) error {
	tag, err := r.pool.Exec(ctx, `UPDATE medicines SET code=$2, name=$3, manufacturer=$4, unit=$5, is_active=$6
WHERE id=$1`, id, m.Code, m.Name, m.Manufacturer, m.Unit, m.IsActive)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
