// Package schedule decides whether an establishment is open at a given
// moment, from its weekly business hours. Windows may wrap past midnight
// (open 22:00, close 02:00). Evaluation is pure: the result is never cached
// because "now" moves continuously.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"pharmago/internal/models"
)

// Warning reports a schedule entry that could not be interpreted. The
// evaluator fails closed on such entries; the caller chooses whether and how
// to log.
type Warning struct {
	Weekday int
	Field   string
	Value   string
}

func (w Warning) String() string {
	return fmt.Sprintf("business hours weekday=%d: unparseable %s %q", w.Weekday, w.Field, w.Value)
}

// IsOpen reports whether the store is open at the wall-clock moment `at`.
// The caller is responsible for converting `at` into the establishment's
// timezone beforehand. A missing weekday entry, a closed day, an empty
// schedule or a malformed time all yield false.
func IsOpen(week models.WeeklySchedule, at time.Time) (bool, []Warning) {
	day, ok := week.ByWeekday(int(at.Weekday()))
	if !ok || day.Closed {
		return false, nil
	}

	var warns []Warning
	openMin, err := parseMinutes(day.OpenTime)
	if err != nil {
		warns = append(warns, Warning{Weekday: day.Weekday, Field: "horario_abertura", Value: day.OpenTime})
	}
	closeMin, err := parseMinutes(day.CloseTime)
	if err != nil {
		warns = append(warns, Warning{Weekday: day.Weekday, Field: "horario_fechamento", Value: day.CloseTime})
	}
	if len(warns) > 0 {
		return false, warns
	}

	nowMin := at.Hour()*60 + at.Minute()
	if openMin <= closeMin {
		return openMin <= nowMin && nowMin <= closeMin, nil
	}
	// Window crosses midnight: open late evening through early morning.
	return nowMin >= openMin || nowMin <= closeMin, nil
}

// parseMinutes converts "HH:MM" (a trailing ":SS" is tolerated and ignored)
// into minutes past midnight.
func parseMinutes(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}
