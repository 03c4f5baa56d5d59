// Package recovery decides how the structural decoder reacts to malformed
// input: fail fast, or patch over the damage and keep going.
package recovery

import "fmt"

// Location pins an error to a place in the document.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

// Action is the decision returned for a recoverable error.
type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionWarn
)

// Strategy is consulted whenever a tolerable structural fault is found.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Strict fails on the first structural fault.
type Strict struct{}

func (Strict) OnError(err error, location Location) Action { return ActionFail }

// Lenient records faults and keeps parsing. The accumulated errors are
// available for diagnostics after the parse finishes.
type Lenient struct {
	Errors []error
}

func (l *Lenient) OnError(err error, location Location) Action {
	l.Errors = append(l.Errors, fmt.Errorf("%s at offset %d (obj %d %d): %w",
		location.Component, location.ByteOffset, location.ObjectNum, location.ObjectGen, err))
	return ActionSkip
}

// Decide applies the strategy, treating a nil strategy as lenient-without-
// bookkeeping.
func Decide(s Strategy, err error, loc Location) Action {
	if s == nil {
		return ActionSkip
	}
	return s.OnError(err, loc)
}
