package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the uniform response envelope. The transport status is
// always 200; Status carries the application-level outcome so stream
// consumers can multiplex success and failure over one shape.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListData wraps list payloads with their total count.
type ListData struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

func writeEnvelope(c echo.Context, status int, data interface{}) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

// SuccessResponse writes a 200 envelope.
func SuccessResponse(c echo.Context, data interface{}) error {
	return writeEnvelope(c, http.StatusOK, data)
}

// CreatedResponse writes a 201 envelope.
func CreatedResponse(c echo.Context, data interface{}) error {
	return writeEnvelope(c, http.StatusCreated, data)
}

// ListResponse writes a 200 envelope holding rows and a total.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return writeEnvelope(c, http.StatusOK, &ListData{Rows: rows, Total: total})
}

// BadRequestResponse writes a 400 envelope, typically carrying
// validation errors.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return writeEnvelope(c, http.StatusBadRequest, data)
}

// AppErrorResponse renders an AppError with its own status; anything
// else becomes an opaque 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return writeEnvelope(c, appErr.Status, []*AppError{appErr})
	}
	return writeEnvelope(c, http.StatusInternalServerError, "something went wrong")
}
