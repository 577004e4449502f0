package models

import "errors"

// Direction is the coarse trend classification.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Trend compares two adjacent windows of equal length.
type Trend struct {
	DeltaPercent float64   `json:"change_percent"` // rounded to one decimal place
	Direction    Direction `json:"trend"`
}

// Validate checks that the direction agrees with the sign of the delta.
// A zero delta is always "down".
func (t *Trend) Validate() error {
	switch t.Direction {
	case DirectionUp:
		if t.DeltaPercent < 0 {
			return errors.New("direction up requires a non-negative delta")
		}
	case DirectionDown:
		if t.DeltaPercent > 0 {
			return errors.New("direction down requires a non-positive delta")
		}
	default:
		return errors.New("direction must be 'up' or 'down'")
	}
	return nil
}
