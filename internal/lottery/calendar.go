package lottery

import "time"

const dateLayout = "2006-01-02"

// DateKey is the calendar day of t in loc, e.g. "2024-01-31".
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

func IsLastDayOfMonth(t time.Time, loc *time.Location) bool {
	local := t.In(loc)
	return local.AddDate(0, 0, 1).Month() != local.Month()
}
