package identifier

import "testing"

func TestParseQualityRoundTrips(t *testing.T) {
	cases := []struct {
		in   string
		want Quality
	}{
		{"ASIL_B", AsilB},
		{"ASIL_QM", AsilQM},
		{"bogus", Invalid},
		{"", Invalid},
	}
	for _, c := range cases {
		if got := ParseQuality(c.in); got != c.want {
			t.Errorf("ParseQuality(%q) = %v, want %v", c.in, got, c.want)
		}
	}
	if AsilB.String() != "ASIL_B" || AsilQM.String() != "ASIL_QM" || Invalid.String() != "Invalid" {
		t.Fatalf("Quality.String() mismatch: %s %s %s", AsilB, AsilQM, Invalid)
	}
}

func TestMatchesAnyInstance(t *testing.T) {
	e := AnyInstance(7, AsilQM)
	if !e.Matches(7, 1, AsilQM) {
		t.Error("expected any-instance request to match any instance id")
	}
	if !e.Matches(7, 99, AsilQM) {
		t.Error("expected any-instance request to match a different instance id")
	}
	if e.Matches(8, 1, AsilQM) {
		t.Error("expected service mismatch to fail")
	}
	if e.Matches(7, 1, AsilB) {
		t.Error("expected quality mismatch to fail")
	}
}

func TestMatchesSpecificInstance(t *testing.T) {
	e := Specific(7, 3, AsilB)
	if !e.Matches(7, 3, AsilB) {
		t.Error("expected exact match to succeed")
	}
	if e.Matches(7, 4, AsilB) {
		t.Error("expected instance mismatch to fail")
	}
}

func TestServiceLevelClearsQuality(t *testing.T) {
	e := Specific(7, 3, AsilB)
	sl := e.ServiceLevel()
	if sl.Quality != Invalid {
		t.Errorf("ServiceLevel() quality = %v, want Invalid", sl.Quality)
	}
	if !sl.HasInstance || sl.Instance != 3 {
		t.Error("ServiceLevel() must preserve instance id")
	}
	if e.Quality != AsilB {
		t.Error("ServiceLevel() must not mutate the receiver")
	}
}

func TestEnrichedString(t *testing.T) {
	if got := Specific(7, 3, AsilB).String(); got != "7/3@ASIL_B" {
		t.Errorf("String() = %q", got)
	}
	if got := AnyInstance(7, AsilQM).String(); got != "7/*@ASIL_QM" {
		t.Errorf("String() = %q", got)
	}
}
