package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ngazi/core/student"
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sql.DB) *studentRepository {
	return &studentRepository{db: sqlx.NewDb(db, "postgres")}
}

type dbStudent struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	IsActive     bool      `db:"is_active"`
	CurrentLevel int       `db:"current_level"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (s dbStudent) toStudent() student.Student {
	return student.Student{
		ID:           s.ID,
		Name:         s.Name,
		Email:        s.Email,
		IsActive:     s.IsActive,
		CurrentLevel: s.CurrentLevel,
		CreatedAt:    s.CreatedAt.UTC(),
		UpdatedAt:    s.UpdatedAt.UTC(),
	}
}

func (repo *studentRepository) CreateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	q := `INSERT INTO students (id, name, email, is_active, current_level, created_at, updated_at)
          VALUES ($1, $2, $3, $4, $5, $6, $7)
          RETURNING *`

	var row dbStudent
	err := repo.db.GetContext(ctx, &row, q,
		std.ID, std.Name, std.Email, std.IsActive, std.CurrentLevel, std.CreatedAt, std.UpdatedAt)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "creating student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string) (student.Student, error) {
	var row dbStudent
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM students WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "getting student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) QueryAllStudents(ctx context.Context) ([]student.Student, error) {
	var rows []dbStudent
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM students ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.toStudent())
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, std student.Student) (student.Student, error) {
	q := `UPDATE students
          SET name = $1, email = $2, is_active = $3, current_level = $4, updated_at = $5
          WHERE id = $6
          RETURNING *`

	var row dbStudent
	err := repo.db.GetContext(ctx, &row, q,
		std.Name, std.Email, std.IsActive, std.CurrentLevel, std.UpdatedAt, std.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return student.Student{}, student.ErrNotFound
		}
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	return row.toStudent(), nil
}

func (repo *studentRepository) SetCurrentLevel(ctx context.Context, id string, level int) error {
	q := `UPDATE students SET current_level = $1, updated_at = $2 WHERE id = $3`

	res, err := repo.db.ExecContext(ctx, q, level, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "setting current level")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return student.ErrNotFound
	}
	return nil
}
