package calls

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusInitiated, StatusRinging, true},
		{StatusInitiated, StatusAnswered, true},
		{StatusInitiated, StatusFailed, true},
		{StatusInitiated, StatusCancelled, true},
		{StatusInitiated, StatusCompleted, true},
		{StatusRinging, StatusAnswered, true},
		{StatusRinging, StatusInitiated, false},
		{StatusAnswered, StatusRinging, false},
		{StatusAnswered, StatusCompleted, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCancelled, StatusRinging, false},
		{StatusRinging, StatusRinging, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestSourcesFor(t *testing.T) {
	got := sourcesFor(StatusAnswered)
	if len(got) != 2 || got[0] != StatusInitiated || got[1] != StatusRinging {
		t.Fatalf("unexpected sources for ANSWERED: %v", got)
	}
	if len(sourcesFor(StatusFailed)) != 3 {
		t.Fatalf("expected every non-terminal state to reach FAILED")
	}
}

func TestParseStatus_CanonicalCasing(t *testing.T) {
	if _, err := ParseStatus("completed"); err == nil {
		t.Fatalf("expected lowercase rejected")
	}
	for _, s := range AllStatuses {
		if got, err := ParseStatus(string(s)); err != nil || got != s {
			t.Fatalf("expected %s to parse, got %s %v", s, got, err)
		}
	}
}
