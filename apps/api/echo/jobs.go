package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ngazi/core"
	"github.com/trezcool/ngazi/core/queue"
)

type jobsApi struct {
	queue    *queue.Queue
	validate *validator.Validate
}

func registerJobsAPI(g *echo.Group, deps ServerDeps) {
	api := jobsApi{
		queue:    deps.Queue,
		validate: deps.Validate,
	}

	jg := g.Group("/jobs")
	jg.POST("", api.create)
	jg.GET("", api.query)
	jg.GET("/stats", api.stats)
	jg.GET("/:id", api.retrieve)
}

// Handlers

func (api *jobsApi) create(ctx echo.Context) error {
	var data queue.NewJob
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewJob")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	job, err := api.queue.Enqueue(data)
	if err != nil {
		return errors.Wrap(err, "enqueueing job")
	}

	return ctx.JSON(http.StatusCreated, job)
}

func (api *jobsApi) query(ctx echo.Context) error {
	var statuses []queue.Status
	if raw := ctx.QueryParam("status"); raw != "" {
		switch st := queue.Status(raw); st {
		case queue.StatusPending, queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed:
			statuses = append(statuses, st)
		default:
			return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "unknown status"})
		}
	}
	return ctx.JSON(http.StatusOK, api.queue.ListJobs(statuses...))
}

func (api *jobsApi) stats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.queue.Stats())
}

func (api *jobsApi) retrieve(ctx echo.Context) error {
	job, err := api.queue.GetJob(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, job)
}
