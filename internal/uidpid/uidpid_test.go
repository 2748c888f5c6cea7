package uidpid

import (
	"testing"

	"golang.org/x/sync/errgroup"
)

func TestRegisterPidFillsTable(t *testing.T) {
	const capacity = 8
	table := New(capacity)

	for i := 0; i < capacity; i++ {
		uid := uint32(100 + i)
		pid := int32(1000 + i)
		got, ok := table.RegisterPid(uid, pid)
		if !ok || got != pid {
			t.Fatalf("RegisterPid(%d, %d) = (%d, %v), want (%d, true)", uid, pid, got, ok, pid)
		}
	}

	// Table is now full; a new UID must fail.
	if _, ok := table.RegisterPid(999, 1); ok {
		t.Fatal("expected RegisterPid to fail on a full table")
	}
}

func TestRegisterPidReturnsPreviousPid(t *testing.T) {
	table := New(4)
	if _, ok := table.RegisterPid(1, 100); !ok {
		t.Fatal("first RegisterPid should succeed")
	}
	prev, ok := table.RegisterPid(1, 200)
	if !ok || prev != 100 {
		t.Fatalf("expected previous pid 100, got %d ok=%v", prev, ok)
	}
}

func TestRegisterPidTakesOverUpdatingEntry(t *testing.T) {
	table := New(4)
	table.seedForTest(0, Updating, 5, 111)

	got, ok := table.RegisterPid(5, 222)
	if !ok || got != 222 {
		t.Fatalf("expected (222, true), got (%d, %v)", got, ok)
	}
	status, uid, pid := table.StatusOf(0)
	if status != Used || uid != 5 || pid != 222 {
		t.Fatalf("expected entry to end Used/5/222, got %v/%d/%d", status, uid, pid)
	}
}

func TestRegisterPidExhaustsRetriesWhenCASAlwaysFails(t *testing.T) {
	// No Unused slot exists, so the acquire pass can never succeed --
	// this exercises the same "retries exhausted" path a mocked
	// always-failing CAS would, without needing to fake the runtime.
	table := New(2)
	table.seedForTest(0, Used, 1, 100)
	table.seedForTest(1, Used, 2, 200)

	if _, ok := table.RegisterPid(3, 300); ok {
		t.Fatal("expected registration to fail with no Unused slots")
	}
}

func TestConcurrentWritersAllSucceed(t *testing.T) {
	const writers = 3
	const perWriter = 30
	table := New(writers * perWriter)

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				uid := uint32(w*perWriter + i)
				pid := int32(10000 + w*perWriter + i)
				if _, ok := table.RegisterPid(uid, pid); !ok {
					t.Errorf("writer %d: RegisterPid(%d, %d) failed", w, uid, pid)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			uid := uint32(w*perWriter + i)
			wantPid := int32(10000 + w*perWriter + i)
			found := false
			for slot := 0; slot < table.Capacity(); slot++ {
				status, entryUID, pid := table.StatusOf(slot)
				if status == Used && entryUID == uid {
					found = true
					if pid != wantPid {
						t.Errorf("uid %d: expected pid %d, got %d", uid, wantPid, pid)
					}
				}
			}
			if !found {
				t.Errorf("uid %d not found in table after concurrent registration", uid)
			}
		}
	}
}
