// Package season classifies timestamps into meteorological season buckets.
package season

import (
	"fmt"
	"time"
)

// Season is one of the four meteorological seasons.
type Season int

const (
	Spring Season = iota
	Summer
	Fall
	Winter
)

// All lists the seasons in calendar order, starting with Spring.
var All = []Season{Spring, Summer, Fall, Winter}

// String returns the English season name.
func (s Season) String() string {
	switch s {
	case Spring:
		return "Spring"
	case Summer:
		return "Summer"
	case Fall:
		return "Fall"
	case Winter:
		return "Winter"
	default:
		return fmt.Sprintf("Season(%d)", int(s))
	}
}

// Bucket identifies a season in a given year. Winter spans the turn of the
// year and belongs to the year in which it started.
type Bucket struct {
	Season Season
	Year   int
}

func (b Bucket) String() string {
	return fmt.Sprintf("%s %d", b.Season, b.Year)
}

// Boundaries returns the first instant of each season in year, in UTC.
func Boundaries(year int) (spring, summer, fall, winter time.Time) {
	spring = time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC)
	summer = time.Date(year, time.June, 20, 0, 0, 0, 0, time.UTC)
	fall = time.Date(year, time.September, 22, 0, 0, 0, 0, time.UTC)
	winter = time.Date(year, time.December, 21, 0, 0, 0, 0, time.UTC)
	return spring, summer, fall, winter
}

// Classify returns the bucket t falls into. Each season range is half-open,
// so an instant equal to a boundary belongs to the season that starts there.
func Classify(t time.Time) Bucket {
	t = t.UTC()
	year := t.Year()
	spring, summer, fall, winter := Boundaries(year)

	switch {
	case t.Before(spring):
		return Bucket{Season: Winter, Year: year - 1}
	case t.Before(summer):
		return Bucket{Season: Spring, Year: year}
	case t.Before(fall):
		return Bucket{Season: Summer, Year: year}
	case t.Before(winter):
		return Bucket{Season: Fall, Year: year}
	default:
		return Bucket{Season: Winter, Year: year}
	}
}
