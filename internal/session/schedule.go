package session

import (
	"time"

	"github.com/mmcdole/anikino/internal/domain"
)

// DaysPerWeek is the fixed number of schedule buckets
const DaysPerWeek = 7

// DayLabels are the schedule tab labels in server order, Sunday first
var DayLabels = [DaysPerWeek]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

// Seasons in calendar order. Each covers three months starting in January.
var Seasons = []string{"冬季", "春季", "夏季", "秋季"}

// FirstYear is the earliest year the backend has schedules for
const FirstYear = 2017

// SeasonOf returns the broadcast year and season containing t
func SeasonOf(t time.Time) (year int, season string) {
	return t.Year(), Seasons[(int(t.Month())-1)/3]
}

// RotationStart returns the server day index the schedule starts on:
// today's weekday for the current season, Monday otherwise.
func RotationStart(year int, season string, now time.Time) int {
	curYear, curSeason := SeasonOf(now)
	if year == curYear && season == curSeason {
		return int(now.Weekday())
	}
	return int(time.Monday)
}

// rotate returns s reordered to begin at start
func rotate[T any](s []T, start int) []T {
	n := len(s)
	if n == 0 {
		return s
	}
	start = ((start % n) + n) % n
	out := make([]T, 0, n)
	out = append(out, s[start:]...)
	return append(out, s[:start]...)
}

// RotateLabels returns the day labels beginning at start
func RotateLabels(start int) []string {
	return rotate(DayLabels[:], start)
}

// RotateDays pads days to seven buckets and rotates them to begin at start.
// Buckets beyond seven are dropped.
func RotateDays(days [][]domain.Item, start int) [][]domain.Item {
	padded := make([][]domain.Item, DaysPerWeek)
	copy(padded, days)
	return rotate(padded, start)
}

// ShiftSeason moves delta seasons from year/season, crossing year boundaries
func ShiftSeason(year int, season string, delta int) (int, string) {
	idx := 0
	for i, s := range Seasons {
		if s == season {
			idx = i
		}
	}
	n := year*len(Seasons) + idx + delta
	return n / len(Seasons), Seasons[n%len(Seasons)]
}
