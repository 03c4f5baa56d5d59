package recovery

import (
	"errors"
	"testing"
)

func TestStrictFailsFirstFault(t *testing.T) {
	if got := Decide(Strict{}, errors.New("boom"), Location{Component: "xref"}); got != ActionFail {
		t.Fatalf("Decide() = %v, want fail", got)
	}
}

func TestLenientRecordsAndSkips(t *testing.T) {
	l := &Lenient{}
	err := errors.New("bad entry")
	if got := Decide(l, err, Location{Component: "loader", ObjectNum: 7}); got != ActionSkip {
		t.Fatalf("Decide() = %v, want skip", got)
	}
	if len(l.Errors) != 1 {
		t.Fatalf("errors recorded = %d", len(l.Errors))
	}
	if !errors.Is(l.Errors[0], err) {
		t.Fatalf("recorded error does not wrap original: %v", l.Errors[0])
	}
}

func TestNilStrategySkips(t *testing.T) {
	if got := Decide(nil, errors.New("x"), Location{}); got != ActionSkip {
		t.Fatalf("Decide(nil) = %v, want skip", got)
	}
}
