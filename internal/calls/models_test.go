package calls

import (
	"encoding/json"
	"testing"
)

func TestBucket(t *testing.T) {
	cases := map[string]Outcome{
		"answered":   OutcomeAnswered,
		"HUMAN":      OutcomeAnswered,
		" Answered ": OutcomeAnswered,
		"no answer":  OutcomeNoAnswer,
		"NO_ANSWER":  OutcomeNoAnswer,
		"busy":       OutcomeBusy,
		"CONGESTION": OutcomeFailed,
		"failed":     OutcomeFailed,
		"error":      OutcomeFailed,
		"unknown":    OutcomeFailed,
		"":           OutcomeFailed,
	}
	for in, want := range cases {
		if got := Bucket(in); got != want {
			t.Fatalf("Bucket(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsAnswered(t *testing.T) {
	if !IsAnswered("Human") {
		t.Fatalf("expected human to count as answered")
	}
	if IsAnswered("busy") {
		t.Fatalf("busy is not answered")
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{`0.35`, 0.35, true},
		{`"0.12"`, 0.12, true},
		{`" 1 "`, 1, true},
		{`null`, 0, false},
		{``, 0, false},
		{`"abc"`, 0, false},
		{`""`, 0, false},
		{`true`, 0, false},
	}
	for _, c := range cases {
		got, ok := ParseAmount(json.RawMessage(c.raw))
		if got != c.want || ok != c.ok {
			t.Fatalf("ParseAmount(%s) = %v,%v want %v,%v", c.raw, got, ok, c.want, c.ok)
		}
	}
}
