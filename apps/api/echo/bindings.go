package echoapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/proofmate/core"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
	invalidDate   = "invalid date, use YYYY-MM-DD or RFC3339"
)

// bindOrdering reads the `?ordering=name,-createdAt` query param.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return nil
	}
	return core.ParseOrdering(val)
}

// bindDateParam reads an RFC3339 or YYYY-MM-DD query param. With endOfDay, a date-only value stands for the
// last instant of that day.
func bindDateParam(ctx echo.Context, name string, endOfDay bool) (time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: invalidDate})
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return t, nil
}

// paramID reads the integer path param `name`; notFound builds the error returned for invalid values.
func paramID(ctx echo.Context, name string, notFound func(string) error) (int, error) {
	raw := ctx.Param(name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, notFound(raw)
	}
	return id, nil
}

func userNotFound(id string) error {
	return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("User not found with id of %s", id))
}

func assignmentNotFound(string) error {
	return echo.NewHTTPError(http.StatusNotFound, "Assignment not found")
}

func submissionNotFound(string) error {
	return echo.NewHTTPError(http.StatusNotFound, "Submission not found")
}

type (
	successResponse struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}

	listResponse struct {
		Success bool        `json:"success"`
		Count   int         `json:"count"`
		Data    interface{} `json:"data"`
	}

	messageResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
)

func okData(data interface{}) successResponse { return successResponse{Success: true, Data: data} }

func okList(count int, data interface{}) listResponse {
	return listResponse{Success: true, Count: count, Data: data}
}

var emptyData = struct{}{}
