package server

import (
	"net/http"
	"strconv"

	"wattview/internal/db"
	"wattview/internal/timeutil"
)

// parseFilter extracts the shared analytics filter from query
// parameters. Parsing is lenient: a malformed value means the
// corresponding filter is simply absent, it never rejects the
// request.
func parseFilter(r *http.Request) db.Filter {
	q := r.URL.Query()

	f := db.Filter{
		Floor:       db.ParseFloorFilter(q.Get("floor")),
		Granularity: db.ParseGranularity(q.Get("granularity")),
		Weekday:     q.Get("weekday"),
	}
	if d := q.Get("date"); timeutil.IsValidDate(d) {
		f.Date = d
	}
	if s := q.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			f.Limit = n
		}
	}
	return f
}
