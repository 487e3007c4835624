package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/progression"
)

type progressionApi struct {
	svc      *progression.Service
	cache    core.CacheService
	conf     *core.Config
	validate *validator.Validate
}

func registerProgressionAPI(g *echo.Group, deps ServerDeps) {
	api := progressionApi{
		svc:      deps.ProgressionSvc,
		cache:    deps.Cache,
		conf:     deps.Conf,
		validate: deps.Validate,
	}

	pg := g.Group("/progression")
	pg.POST("/awards", api.award)
	pg.GET("/records/:ownerID", api.records)
	pg.GET("/leaderboard", api.leaderboard)
}

// Handlers

func (api *progressionApi) award(ctx echo.Context) error {
	var data progression.ExperienceAward
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ExperienceAward")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.AddExperience(ctx.Request().Context(), data.OwnerID, data.Scope, data.Delta)
	if err != nil {
		return errors.Wrap(err, "adding experience")
	}

	return ctx.JSON(http.StatusOK, res)
}

// records returns all of an owner's records; narrowed to a single record
// when a `scope` query param is provided (empty value means global).
func (api *progressionApi) records(ctx echo.Context) error {
	ownerID := ctx.Param("ownerID")

	if scopes, ok := ctx.QueryParams()["scope"]; ok {
		scope := null.String{}
		if len(scopes) > 0 && scopes[0] != "" {
			scope = null.StringFrom(scopes[0])
		}
		rec, err := api.svc.GetRecord(ctx.Request().Context(), ownerID, scope)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, rec)
	}

	records, err := api.svc.ListByOwner(ctx.Request().Context(), ownerID)
	if err != nil {
		return errors.Wrap(err, "listing records")
	}
	return ctx.JSON(http.StatusOK, records)
}

// leaderboard serves the cached leaderboard, falling back to a live query
// while the cache is cold.
func (api *progressionApi) leaderboard(ctx echo.Context) error {
	scope := ctx.QueryParam("scope")

	limit := api.conf.Progression.LeaderboardSize
	if rawLimit := ctx.QueryParam("limit"); rawLimit != "" {
		l, err := strconv.Atoi(rawLimit)
		if err != nil || l <= 0 {
			return core.NewValidationError(nil, core.FieldError{Field: "limit", Error: "must be a positive integer"})
		}
		if l < limit {
			limit = l
		}
	}

	entries, err := api.cache.GetLeaderboard(ctx.Request().Context(), scope, limit)
	if err != nil {
		return errors.Wrap(err, "reading cached leaderboard")
	}
	if len(entries) == 0 {
		nullScope := null.String{}
		if scope != "" {
			nullScope = null.StringFrom(scope)
		}
		records, err := api.svc.Leaderboard(ctx.Request().Context(), nullScope, limit)
		if err != nil {
			return errors.Wrap(err, "listing top records")
		}
		for _, rec := range records {
			entries = append(entries, core.LeaderboardEntry{
				OwnerID:    rec.OwnerID,
				Level:      rec.Level,
				Experience: rec.Experience,
			})
		}
	}

	return ctx.JSON(http.StatusOK, entries)
}
