package pgrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
)

const uniqueViolation = "23505"

type recordRepository struct {
	db *sqlx.DB
}

var _ progression.Repository = (*recordRepository)(nil)

func NewRecordRepository(db *sql.DB) *recordRepository {
	return &recordRepository{db: sqlx.NewDb(db, "postgres")}
}

type dbRecord struct {
	ID          string      `db:"id"`
	OwnerID     string      `db:"owner_id"`
	Scope       null.String `db:"scope"`
	Level       int         `db:"level"`
	Experience  int         `db:"experience"`
	NextLevelAt int         `db:"next_level_at"`
	IsActive    bool        `db:"is_active"`
	Version     int         `db:"version"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r dbRecord) toRecord() progression.Record {
	return progression.Record{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Scope:       r.Scope,
		Level:       r.Level,
		Experience:  r.Experience,
		NextLevelAt: r.NextLevelAt,
		IsActive:    r.IsActive,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func toRecords(rows []dbRecord) []progression.Record {
	records := make([]progression.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records
}

func (repo *recordRepository) GetRecord(ctx context.Context, ownerID string, scope null.String) (progression.Record, error) {
	q := `SELECT * FROM progression_records
          WHERE owner_id = $1 AND COALESCE(scope, '') = $2 AND is_active`

	var row dbRecord
	if err := repo.db.GetContext(ctx, &row, q, ownerID, scope.String); err != nil {
		if err == sql.ErrNoRows {
			return progression.Record{}, progression.ErrRecordNotFound
		}
		return progression.Record{}, errors.Wrap(err, "getting record")
	}
	return row.toRecord(), nil
}

func (repo *recordRepository) GetRecordByID(ctx context.Context, id string) (progression.Record, error) {
	var row dbRecord
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM progression_records WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return progression.Record{}, progression.ErrRecordNotFound
		}
		return progression.Record{}, errors.Wrap(err, "getting record by id")
	}
	return row.toRecord(), nil
}

func (repo *recordRepository) CreateRecord(ctx context.Context, rec progression.Record) (progression.Record, error) {
	q := `INSERT INTO progression_records
          (id, owner_id, scope, level, experience, next_level_at, is_active, version, created_at, updated_at)
          VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)
          RETURNING *`

	var row dbRecord
	err := repo.db.GetContext(ctx, &row, q,
		rec.ID, rec.OwnerID, rec.Scope, rec.Level, rec.Experience, rec.NextLevelAt,
		rec.IsActive, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		// the partial unique index makes a concurrent lazy-create lose cleanly
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return progression.Record{}, progression.ErrConflict
		}
		return progression.Record{}, errors.Wrap(err, "creating record")
	}
	return row.toRecord(), nil
}

func (repo *recordRepository) UpdateRecord(ctx context.Context, rec progression.Record) (progression.Record, error) {
	q := `UPDATE progression_records
          SET level = $1, experience = $2, next_level_at = $3, is_active = $4,
              version = version + 1, updated_at = $5
          WHERE id = $6 AND version = $7
          RETURNING *`

	var row dbRecord
	err := repo.db.GetContext(ctx, &row, q,
		rec.Level, rec.Experience, rec.NextLevelAt, rec.IsActive, rec.UpdatedAt,
		rec.ID, rec.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			// record changed (or vanished) between read and write
			return progression.Record{}, progression.ErrConflict
		}
		return progression.Record{}, errors.Wrap(err, "updating record")
	}
	return row.toRecord(), nil
}

func (repo *recordRepository) ListOwnerRecords(ctx context.Context, ownerID string) ([]progression.Record, error) {
	q := `SELECT * FROM progression_records WHERE owner_id = $1 ORDER BY created_at`

	var rows []dbRecord
	if err := repo.db.SelectContext(ctx, &rows, q, ownerID); err != nil {
		return nil, errors.Wrap(err, "listing owner records")
	}
	return toRecords(rows), nil
}

// leaderboard ordering: earlier records win dead ties
var topRecordsOrdering = []core.DBOrdering{
	{Field: "level"},
	{Field: "experience"},
	{Field: "created_at", Ascending: true},
}

func (repo *recordRepository) ListTopRecords(ctx context.Context, scope null.String, limit int) ([]progression.Record, error) {
	orderBy := make([]string, 0, len(topRecordsOrdering))
	for _, ord := range topRecordsOrdering {
		orderBy = append(orderBy, ord.String())
	}
	q := `SELECT * FROM progression_records
          WHERE COALESCE(scope, '') = $1 AND is_active
          ORDER BY ` + strings.Join(orderBy, ", ") + `
          LIMIT $2`

	var rows []dbRecord
	if err := repo.db.SelectContext(ctx, &rows, q, scope.String, limit); err != nil {
		return nil, errors.Wrap(err, "listing top records")
	}
	return toRecords(rows), nil
}

func (repo *recordRepository) ListActiveScopes(ctx context.Context) ([]string, error) {
	q := `SELECT DISTINCT scope FROM progression_records
          WHERE scope IS NOT NULL AND is_active ORDER BY scope`

	var scopes []string
	if err := repo.db.SelectContext(ctx, &scopes, q); err != nil {
		return nil, errors.Wrap(err, "listing active scopes")
	}
	return scopes, nil
}

func (repo *recordRepository) DeactivateRecord(ctx context.Context, id string) error {
	q := `UPDATE progression_records
          SET is_active = FALSE, version = version + 1, updated_at = $1
          WHERE id = $2`

	res, err := repo.db.ExecContext(ctx, q, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "deactivating record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return progression.ErrRecordNotFound
	}
	return nil
}
