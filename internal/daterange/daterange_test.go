package daterange

import (
	"errors"
	"testing"
	"time"
)

var saoPaulo = time.FixedZone("BRT", -3*60*60)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, saoPaulo)
}

func TestResolve(t *testing.T) {
	now := time.Date(2024, 3, 15, 22, 30, 0, 0, saoPaulo)
	cases := []struct {
		opt        Option
		start, end time.Time
	}{
		{Today, day(2024, 3, 15), day(2024, 3, 15)},
		{Yesterday, day(2024, 3, 14), day(2024, 3, 14)},
		{Last7, day(2024, 3, 9), day(2024, 3, 15)},
		{Last30, day(2024, 2, 15), day(2024, 3, 15)},
		{ThisMonth, day(2024, 3, 1), day(2024, 3, 31)},
	}
	for _, c := range cases {
		f, err := Resolve(c.opt, now)
		if err != nil {
			t.Fatalf("%s: %v", c.opt, err)
		}
		if !f.StartDate.Equal(c.start) || !f.EndDate.Equal(c.end) {
			t.Fatalf("%s: got %s..%s want %s..%s", c.opt, f.StartDate, f.EndDate, c.start, c.end)
		}
	}
}

func TestResolve_Lifetime(t *testing.T) {
	f, err := Resolve(Lifetime, time.Now())
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if f.Bounded() || f.StartDate != nil || f.EndDate != nil {
		t.Fatalf("lifetime must be unbounded")
	}
	if _, _, ok := f.Bounds(); ok {
		t.Fatalf("lifetime has no bounds")
	}
}

func TestResolve_Unknown(t *testing.T) {
	if _, err := Resolve("fortnight", time.Now()); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}
}

func TestParse_Custom(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, saoPaulo)
	f, err := Parse("custom", "2024-03-01", "2024-03-10", now)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	from, to, ok := f.Bounds()
	if !ok {
		t.Fatalf("expected bounded")
	}
	if !from.Equal(day(2024, 3, 1)) {
		t.Fatalf("unexpected from %s", from)
	}
	if !to.Equal(day(2024, 3, 11).Add(-time.Nanosecond)) {
		t.Fatalf("unexpected to %s", to)
	}

	if _, err := Parse("custom", "2024-03-10", "2024-03-01", now); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := Parse("custom", "", "2024-03-01", now); !errors.Is(err, ErrMissingBound) {
		t.Fatalf("expected ErrMissingBound, got %v", err)
	}
	if _, err := Parse("custom", "03/01/2024", "2024-03-01", now); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParse_EmptyMeansLifetime(t *testing.T) {
	f, err := Parse("", "", "", time.Now())
	if err != nil || f.Option != Lifetime {
		t.Fatalf("expected lifetime, got %+v %v", f, err)
	}
}
