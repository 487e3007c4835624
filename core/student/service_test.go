package student_test

import (
	"context"
	"testing"

	"github.com/trezcool/ngazi/core/student"
	inmemdb "github.com/trezcool/ngazi/storage/database/inmem"
)

func setup(t *testing.T) *student.Service {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	return student.NewService(inmemdb.NewStudentRepository(db))
}

func TestService_Create(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	std, err := svc.Create(ctx, student.NewStudent{Name: "Asha Mwangi", Email: "asha@test.test"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if std.ID == "" {
		t.Error("ID is empty")
	}
	if !std.IsActive {
		t.Error("IsActive = false, want true")
	}
	if std.CurrentLevel != 1 {
		t.Errorf("CurrentLevel = %v, want 1", std.CurrentLevel)
	}

	got, err := svc.GetByID(ctx, std.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.Name != std.Name || got.Email != std.Email {
		t.Errorf("GetByID() = %+v, want %+v", got, std)
	}
}

func TestService_GetByID_notFound(t *testing.T) {
	svc := setup(t)

	if _, err := svc.GetByID(context.Background(), "ghost"); err != student.ErrNotFound {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestService_Deactivate(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	std, err := svc.Create(ctx, student.NewStudent{Name: "Asha Mwangi"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err = svc.Deactivate(ctx, std.ID); err != nil {
		t.Fatalf("Deactivate() failed: %v", err)
	}
	got, err := svc.GetByID(ctx, std.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if got.IsActive {
		t.Error("IsActive = true after Deactivate, want false")
	}

	if err = svc.Deactivate(ctx, "ghost"); err != student.ErrNotFound {
		t.Errorf("Deactivate() error = %v, want ErrNotFound", err)
	}
}
