package student

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// errors
	ErrNotFound = errors.New("student not found")
)

type (
	Repository interface {
		CreateStudent(ctx context.Context, std Student) (Student, error)
		GetStudentByID(ctx context.Context, id string) (Student, error)
		QueryAllStudents(ctx context.Context) ([]Student, error)
		UpdateStudent(ctx context.Context, std Student) (Student, error)
		// SetCurrentLevel updates only the denormalized level field.
		SetCurrentLevel(ctx context.Context, id string, level int) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		ID:           uuid.New().String(),
		Name:         ns.Name,
		Email:        ns.Email,
		IsActive:     true,
		CurrentLevel: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateStudent(ctx, std)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) QueryAll(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryAllStudents(ctx)
}

func (svc *Service) SetCurrentLevel(ctx context.Context, id string, level int) error {
	return svc.repo.SetCurrentLevel(ctx, id, level)
}

func (svc *Service) Deactivate(ctx context.Context, id string) error {
	std, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return err
	}
	std.IsActive = false
	std.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateStudent(ctx, std)
	return err
}
