package prompt

import (
	"time"

	"github.com/rs/zerolog/log"
)

// StartOfTodayInTimezone returns local midnight for now in tz. The local
// date is taken from now formatted in tz, then midnight is constructed in
// that location, so the result stays correct across DST transitions.
// Unknown timezones fall back to UTC.
func StartOfTodayInTimezone(now time.Time, tz string) time.Time {
	loc := loadLocation(tz)
	local := now.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// TimeOfDayBucket classifies a local hour: morning before 12, afternoon
// before 17, evening otherwise.
func TimeOfDayBucket(hour int) string {
	switch {
	case hour < 12:
		return "morning"
	case hour < 17:
		return "afternoon"
	default:
		return "evening"
	}
}

func loadLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Str("timezone", tz).Msg("unknown timezone, falling back to UTC")
		return time.UTC
	}
	return loc
}
