package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/StrathCole/fee-oracle/pkg/fees"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

func dataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func successResponse(c echo.Context, data interface{}) error {
	return dataResponse(c, http.StatusOK, data)
}

func createdResponse(c echo.Context, data interface{}) error {
	return dataResponse(c, http.StatusCreated, data)
}

func badRequestResponse(c echo.Context, data interface{}) error {
	return dataResponse(c, http.StatusBadRequest, data)
}

// errorResponse maps domain errors onto HTTP statuses.
func errorResponse(c echo.Context, err error) error {
	body := []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
	switch {
	case errors.Is(err, fees.ErrNotFound):
		body[0].Code = "ERR_NOT_FOUND"
		return dataResponse(c, http.StatusNotFound, body)
	case errors.Is(err, fees.ErrInvalidWeight),
		errors.Is(err, fees.ErrInvalidObservation),
		errors.Is(err, fees.ErrUnknownKind),
		errors.Is(err, fees.ErrInvalidSymbolFormat):
		body[0].Code = "ERR_INVALID"
		return dataResponse(c, http.StatusBadRequest, body)
	default:
		return dataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
}
