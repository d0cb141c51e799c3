// Package zodiac derives the tropical (Western) zodiac sign from a birth
// date. Date ranges are approximate and may shift by a day between years.
package zodiac

import (
	"fmt"
	"time"
)

type signRange struct {
	startMonth, startDay int
	endMonth, endDay     int
	sign                 string
}

var signRanges = []signRange{
	{12, 22, 1, 19, "Capricorn"},
	{1, 20, 2, 18, "Aquarius"},
	{2, 19, 3, 20, "Pisces"},
	{3, 21, 4, 19, "Aries"},
	{4, 20, 5, 20, "Taurus"},
	{5, 21, 6, 20, "Gemini"},
	{6, 21, 7, 22, "Cancer"},
	{7, 23, 8, 22, "Leo"},
	{8, 23, 9, 22, "Virgo"},
	{9, 23, 10, 22, "Libra"},
	{10, 23, 11, 21, "Scorpio"},
	{11, 22, 12, 21, "Sagittarius"},
}

// SignForDate returns the zodiac sign for a "YYYY-MM-DD" birth date.
func SignForDate(birthDate string) (string, error) {
	t, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return "", fmt.Errorf("zodiac: parse birth date %q: %w", birthDate, err)
	}
	month, day := int(t.Month()), t.Day()

	for _, r := range signRanges {
		if r.startMonth > r.endMonth {
			// Capricorn spans the year boundary.
			if (month == r.startMonth && day >= r.startDay) || (month == r.endMonth && day <= r.endDay) {
				return r.sign, nil
			}
			continue
		}
		if (month == r.startMonth && day >= r.startDay) ||
			(month == r.endMonth && day <= r.endDay) ||
			(r.startMonth < month && month < r.endMonth) {
			return r.sign, nil
		}
	}
	return "", fmt.Errorf("zodiac: no sign for date %q", birthDate)
}
