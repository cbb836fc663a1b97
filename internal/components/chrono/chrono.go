package chrono

import (
	"time"
)

var casablanca *time.Location

func init() {
	var err error
	casablanca, err = time.LoadLocation("Africa/Casablanca")
	if err != nil {
		casablanca = time.FixedZone("Africa/Casablanca", 60*60)
	}
}

// Casablanca returns the [*time.Location] the portal's school days follow.
func Casablanca() *time.Location {
	return casablanca
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time in Africa/Casablanca.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (StandardTime) Now() time.Time {
	return time.Now().In(casablanca)
}

// StartOfDay truncates t to midnight in Africa/Casablanca.
func StartOfDay(t time.Time) time.Time {
	t = t.In(casablanca)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, casablanca)
}
