package controllers

import (
	"content-calendar/helpers"
	"content-calendar/metrics"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

func SetupHealthRoutes(se *core.ServeEvent) {
	se.Router.GET("/api/v1/ping", Ping)
	se.Router.GET("/metrics", apis.WrapStdHandler(metrics.Handler()))
}

// GET /api/v1/ping
func Ping(e *core.RequestEvent) error {
	return helpers.Success(e, "Ping success", nil)
}
