package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/chuo/core"
)

const dateLayout = "2006-01-02"

// userParam returns the :userId path parameter. "me" stands for the caller, returned as "".
func userParam(ctx echo.Context) string {
	id := strings.TrimSpace(ctx.Param("userId"))
	if id == "me" {
		return ""
	}
	return id
}

// dateParam parses the query parameter name as an RFC 3339 time or a date in loc.
// A date used as an upper bound covers the whole day.
func dateParam(ctx echo.Context, name string, loc *time.Location, upper bool) (time.Time, error) {
	val := strings.TrimSpace(ctx.QueryParam(name))
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, val, loc)
	if err != nil {
		return time.Time{}, core.NewFieldError(name, "must be a date (YYYY-MM-DD) or an RFC 3339 time")
	}
	if upper {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}
