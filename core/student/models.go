package student

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ngazi/core"
)

// Student is an owner of experience progression. CurrentLevel mirrors the
// owner's global progression record for fast profile/leaderboard reads; it is
// derived state and may briefly lag the record after a level-up.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	CurrentLevel int       `json:"current_level"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	return validate.Struct(ns)
}
