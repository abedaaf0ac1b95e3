package controllers

import (
	"context"
	"errors"
	"net/http"

	"content-calendar/helpers"
	"content-calendar/scheduler"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Checker runs one scheduler check on demand.
type Checker interface {
	CheckAndPublishDue(ctx context.Context) (scheduler.Report, error)
}

func SetupSchedulerRoutes(se *core.ServeEvent, checker Checker) {
	se.Router.POST("/api/v1/scheduler/run", func(e *core.RequestEvent) error {
		return RunScheduler(e, checker)
	}).Bind(apis.RequireSuperuserAuth())
}

// POST /api/v1/scheduler/run
func RunScheduler(e *core.RequestEvent, checker Checker) error {
	report, err := checker.CheckAndPublishDue(e.Request.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			return helpers.Error(e, http.StatusConflict, "A scheduler check is already running")
		}
		return helpers.Error(e, http.StatusInternalServerError, "Scheduler check failed: "+err.Error())
	}
	return helpers.Success(e, "Scheduler check finished", report)
}
