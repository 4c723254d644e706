package model

import "time"

// AvailabilityWindow is a recurring weekly range during which a provider takes appointments.
type AvailabilityWindow struct {
	ID         string       `json:"id"`
	ProviderID string       `json:"provider_id"`
	Weekday    time.Weekday `json:"weekday"`
	Start      Clock        `json:"start"`
	End        Clock        `json:"end"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (w AvailabilityWindow) Overlaps(o AvailabilityWindow) bool {
	return w.Weekday == o.Weekday && Overlaps(w.Start, w.End, o.Start, o.End)
}

// Covers reports whether [start, end) lies entirely inside the window.
func (w AvailabilityWindow) Covers(start, end Clock) bool {
	return w.Start <= start && end <= w.End
}
