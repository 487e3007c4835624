package progression

import (
	"regexp"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
)

// LeaderboardRefreshJob is the job type enqueued after a global level-up so the
// cached leaderboard catches up asynchronously.
const LeaderboardRefreshJob = "leaderboard-refresh"

var (
	scopeTag   = "scope"
	scopeText  = "only lowercase alphanumeric characters and hyphens are allowed"
	scopeRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Record tracks one owner's experience progression within a scope.
// A null Scope means global progression. Experience always stays below
// NextLevelAt: awards that cross it roll into higher levels instead.
type Record struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Scope       null.String `json:"scope"`
	Level       int         `json:"level"`
	Experience  int         `json:"experience"`
	NextLevelAt int         `json:"next_level_at"`
	IsActive    bool        `json:"is_active"`
	Version     int         `json:"-"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

func (r Record) IsGlobal() bool {
	return !r.Scope.Valid
}

// AwardResult reports the outcome of applying one experience award.
type AwardResult struct {
	Record        Record `json:"record"`
	LeveledUp     bool   `json:"leveled_up"`
	PreviousLevel int    `json:"previous_level"`
}

// ExperienceAward contains information needed to apply an experience delta.
type ExperienceAward struct {
	OwnerID string      `json:"owner_id" validate:"required"`
	Scope   null.String `json:"scope"`
	Delta   int         `json:"delta" validate:"min=0"`
}

func (ea *ExperienceAward) Validate(validate *validator.Validate) error {
	ea.OwnerID = core.CleanString(ea.OwnerID)
	if ea.Scope.Valid {
		ea.Scope = null.StringFrom(core.CleanString(ea.Scope.String, true /* lower */))
		if !scopeRegex.MatchString(ea.Scope.String) {
			return core.NewValidationError(nil, core.FieldError{Field: "scope", Error: scopeText})
		}
	}
	return validate.Struct(ea)
}

// InitValidators registers this package's custom validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(scopeTag, scopeValidation)
	core.RegisterCustomTranslation(validate, translator, scopeTag, scopeText)
}

// scopeValidation only allows clean scope identifiers (e.g. "class-7b").
func scopeValidation(fl validator.FieldLevel) bool {
	return scopeRegex.MatchString(fl.Field().String())
}
