package flagfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jihwankim/commgmt/internal/identifier"
)

func TestMakeAndRelease(t *testing.T) {
	root := t.TempDir()
	seed := NewDisambiguatorSeed()

	h, err := Make(root, 1, 2, identifier.AsilB, seed.Next())
	if err != nil {
		t.Fatalf("Make: %v", err)
	}

	exists, err := Exists(root, 1, 2, identifier.AsilB)
	if err != nil || !exists {
		t.Fatalf("expected flag file to exist, err=%v exists=%v", err, exists)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := h.Release(); err != nil {
		t.Fatalf("second Release must be a no-op, got %v", err)
	}

	exists, err = Exists(root, 1, 2, identifier.AsilB)
	if err != nil || exists {
		t.Fatalf("expected flag file to be gone, err=%v exists=%v", err, exists)
	}
}

func TestExistsOnMissingInstanceDir(t *testing.T) {
	root := t.TempDir()
	exists, err := Exists(root, 9, 9, identifier.AsilQM)
	if err != nil {
		t.Fatalf("Exists on missing dir should not error: %v", err)
	}
	if exists {
		t.Fatalf("expected no instance")
	}
}

func TestDisambiguatorMonotonic(t *testing.T) {
	seed := NewDisambiguatorSeed()
	a := seed.Next()
	b := seed.Next()
	if b <= a {
		t.Fatalf("expected monotonically increasing values, got %d then %d", a, b)
	}
}

func TestConvertFromStringToInstanceID(t *testing.T) {
	id, err := ConvertFromStringToInstanceID("42")
	if err != nil || id != 42 {
		t.Fatalf("expected 42, got %v err=%v", id, err)
	}
	if _, err := ConvertFromStringToInstanceID("not-a-number"); err == nil {
		t.Fatal("expected non-fatal error for bad instance id")
	}
}

func TestParseQualityTypeFromString(t *testing.T) {
	cases := map[string]identifier.Quality{
		"ASIL_B_1234":  identifier.AsilB,
		"ASIL_QM_5":    identifier.AsilQM,
		"garbage_name": identifier.Invalid,
	}
	for name, want := range cases {
		if got := ParseQualityTypeFromString(name); got != want {
			t.Errorf("ParseQualityTypeFromString(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMakeFailsWhenAlreadyOffered(t *testing.T) {
	root := t.TempDir()
	_, err := Make(root, 1, 1, identifier.AsilB, 1)
	if err != nil {
		t.Fatalf("first Make: %v", err)
	}
	if _, err := Make(root, 1, 1, identifier.AsilB, 1); err == nil {
		t.Fatal("expected second Make with the same disambiguator to fail")
	}
}

func TestFlagFilePathLayout(t *testing.T) {
	got := FlagFilePath("/root", 7, 3, identifier.AsilQM, 99)
	want := filepath.Join("/root", "7", "3", "ASIL_QM_99")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestMakeIsVisibleOnDisk(t *testing.T) {
	root := t.TempDir()
	h, err := Make(root, 1, 1, identifier.AsilB, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(h.Path()); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
}
