package franchises

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists franchises.
type Repository interface {
	List(ctx context.Context, search string, limit, offset int) ([]Franchise, int, error)
	Get(ctx context.Context, id int64) (Franchise, error)
	Create(ctx context.Context, f Franchise) (Franchise, error)
	Update(ctx context.Context, id int64, f Franchise) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, search string, limit, offset int) ([]Franchise, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR code ILIKE '%' || $1 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM franchises `+where, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, code, name, address, contact_phone, is_active
FROM franchises `+where+` ORDER BY name LIMIT $2 OFFSET $3`, search, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []Franchise{}
	for rows.Next() {
		var f Franchise
		if err := rows.Scan(&f.ID, &f.Code, &f.Name, &f.Address, &f.ContactPhone, &f.IsActive); err != nil {
			return nil, 0, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Franchise, error) {
	var f Franchise
	err := r.pool.QueryRow(ctx, `SELECT id, code, name, address, contact_phone, is_active
FROM franchises WHERE id=$1`, id).Scan(&f.ID, &f.Code, &f.Name, &f.Address, &f.ContactPhone, &f.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Franchise{}, ErrNotFound
		}
		return Franchise{}, err
	}
	return f, nil
}

func (r *repository) Create(ctx context.Context, f Franchise) (Franchise, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO franchises (code, name, address, contact_phone, is_active)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		f.Code, f.Name, f.Address, f.ContactPhone, f.IsActive).Scan(&f.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Franchise{}, ErrDuplicateCode
		}
		return Franchise{}, err
	}
	return f, nil
}

func (r *repository) Update(ctx context.Context, id int64, f Franchise) error {
	tag, err := r.pool.Exec(ctx, `UPDATE franchises SET code=$2, name=$3, address=$4, contact_phone=$5, is_active=$6
WHERE id=$1`, id, f.Code, f.Name, f.Address, f.ContactPhone, f.IsActive)
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
