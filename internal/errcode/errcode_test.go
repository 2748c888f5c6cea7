package errcode

import "testing"

func TestRoundTrip(t *testing.T) {
	for code := Invalid + 1; int32(code) < NumEnumElements; code++ {
		wire := SerializeError(code)
		got := Deserialize(wire)
		if got == nil || got.Code != code {
			t.Fatalf("round trip failed for code %d: got %v", code, got)
		}
	}
}

func TestSerializeSuccessDeserializesToOK(t *testing.T) {
	if got := Deserialize(SerializeSuccess()); got != nil {
		t.Fatalf("expected nil (ok), got %v", got)
	}
	if got := Deserialize(0); got != nil {
		t.Fatalf("Deserialize(0) expected ok, got %v", got)
	}
}

func TestSerializeErrorPreconditionViolations(t *testing.T) {
	cases := []Code{Invalid, Code(NumEnumElements)}
	for _, c := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic for code %d", c)
				}
			}()
			SerializeError(c)
		}()
	}
}

func TestDeserializePreconditionViolation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic deserializing NumEnumElements")
		}
	}()
	Deserialize(NumEnumElements)
}
