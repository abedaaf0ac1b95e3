package helpers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
)

type SuccessResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

type ErrorResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
}

func Success(e *core.RequestEvent, message string, data interface{}) error {
	return e.JSON(http.StatusOK, SuccessResponse{
		Status:  true,
		Message: message,
		Data:    data,
	})
}

func Error(e *core.RequestEvent, code int, message string) error {
	if e.App != nil {
		e.App.Logger().Error(message, "path", e.Request.URL.Path)
	}
	return e.JSON(code, ErrorResponse{
		Status:  false,
		Message: message,
	})
}
