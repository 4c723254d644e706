package model

type Status string

const (
	StatusPlanned    Status = "planned"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
	StatusCancelled  Status = "cancelled"
)

var AllStatuses = []Status{StatusPlanned, StatusConfirmed, StatusInProgress, StatusFinished, StatusCancelled}

// transitions lists, for each target status, the statuses it may be entered from.
var transitions = map[Status][]Status{
	StatusConfirmed:  {StatusPlanned},
	StatusInProgress: {StatusPlanned, StatusConfirmed},
	StatusFinished:   {StatusInProgress},
	StatusCancelled:  {StatusPlanned, StatusConfirmed, StatusInProgress},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusConfirmed, StatusInProgress, StatusFinished, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses have no outgoing transition.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelled
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses a conditional update into to may match on.
func AllowedFrom(to Status) []Status {
	out := make([]Status, len(transitions[to]))
	copy(out, transitions[to])
	return out
}
