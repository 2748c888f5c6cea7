package crawler

import (
	"errors"
	"io"
	"testing"

	"github.com/jihwankim/commgmt/internal/errcode"
	"github.com/jihwankim/commgmt/internal/flagfile"
	"github.com/jihwankim/commgmt/internal/identifier"
	"github.com/jihwankim/commgmt/internal/telemetry"
	"github.com/jihwankim/commgmt/internal/watcher"
)

func testLogger() *telemetry.Logger {
	return telemetry.New(telemetry.Config{Output: io.Discard})
}

func offer(t *testing.T, root string, service identifier.ServiceID, instance identifier.InstanceID, q identifier.Quality) {
	t.Helper()
	if _, err := flagfile.Make(root, service, instance, q, uint64(instance)+1); err != nil {
		t.Fatalf("offer: %v", err)
	}
}

func TestCrawlFindsOfferedInstance(t *testing.T) {
	root := t.TempDir()
	offer(t, root, 1, 1, identifier.AsilB)

	c := New(root, watcher.NewFake(), testLogger())
	result, cerr := c.Crawl(identifier.AnyInstance(1, identifier.Invalid))
	if cerr != nil {
		t.Fatalf("Crawl: %v", cerr)
	}
	if !result.Known.AsilB.Contains(1, 1) {
		t.Fatal("expected instance 1 known at AsilB")
	}
	if !result.Known.AsilQM.Contains(1, 1) {
		t.Fatal("expected ASIL-B offer to fall through to ASIL-QM cache")
	}
	if len(result.NewWatches) != 0 {
		t.Fatal("Crawl must not install watches")
	}
}

func TestCrawlAndWatchInstallsWatches(t *testing.T) {
	root := t.TempDir()
	offer(t, root, 1, 1, identifier.AsilQM)
	offer(t, root, 1, 2, identifier.AsilQM)

	fake := watcher.NewFake()
	c := New(root, fake, testLogger())
	result, cerr := c.CrawlAndWatch(identifier.AnyInstance(1, identifier.Invalid))
	if cerr != nil {
		t.Fatalf("CrawlAndWatch: %v", cerr)
	}

	// One watch for the service dir, one for each discovered instance dir.
	if len(result.NewWatches) != 3 {
		t.Fatalf("expected 3 watches (service + 2 instances), got %d", len(result.NewWatches))
	}
	if result.Known.AsilQM.Len() != 2 {
		t.Fatalf("expected 2 known instances, got %d", result.Known.AsilQM.Len())
	}
	if result.Known.AsilB.Len() != 0 {
		t.Fatal("ASIL-QM-only offers must not appear in the ASIL-B cache")
	}
}

func TestCrawlAndWatchSpecificInstanceWatchesOnlyThatDir(t *testing.T) {
	root := t.TempDir()
	offer(t, root, 1, 1, identifier.AsilB)

	fake := watcher.NewFake()
	c := New(root, fake, testLogger())
	result, cerr := c.CrawlAndWatch(identifier.Specific(1, 1, identifier.Invalid))
	if cerr != nil {
		t.Fatalf("CrawlAndWatch: %v", cerr)
	}
	if len(result.NewWatches) != 1 {
		t.Fatalf("expected exactly 1 watch for the instance dir, got %d", len(result.NewWatches))
	}
}

func TestCrawlOnEmptyRootReturnsEmptySets(t *testing.T) {
	root := t.TempDir()
	c := New(root, watcher.NewFake(), testLogger())
	result, cerr := c.Crawl(identifier.AnyInstance(1, identifier.Invalid))
	if cerr != nil {
		t.Fatalf("Crawl on empty root should not error: %v", cerr)
	}
	if result.Known.AsilB.Len() != 0 || result.Known.AsilQM.Len() != 0 {
		t.Fatal("expected no known instances on an empty root")
	}
}

func TestCrawlInvalidQualityIsBindingFailure(t *testing.T) {
	c := New(t.TempDir(), watcher.NewFake(), testLogger())
	bogus := identifier.AnyInstance(1, identifier.Quality(99))
	_, cerr := c.Crawl(bogus)
	if cerr == nil || cerr.Code != errcode.BindingFailure {
		t.Fatalf("expected BindingFailure for invalid quality, got %v", cerr)
	}
}

// failingWatcher always fails AddWatch, to exercise the retry path.
type failingWatcher struct {
	watcher.Watcher
	failures int
	calls    int
}

func (f *failingWatcher) AddWatch(path string, mask watcher.EventMask) (watcher.Descriptor, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("permission denied")
	}
	return watcher.Descriptor(f.calls), nil
}

func TestCrawlAndWatchWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	root := t.TempDir()
	offer(t, root, 1, 1, identifier.AsilB)

	fw := &failingWatcher{Watcher: watcher.NewFake(), failures: 2}
	c := New(root, fw, testLogger())

	_, cerr := c.CrawlAndWatchWithRetry(identifier.AnyInstance(1, identifier.Invalid), 3)
	if cerr != nil {
		t.Fatalf("expected success on the 3rd attempt, got %v", cerr)
	}
}

func TestCrawlAndWatchWithRetryExhausted(t *testing.T) {
	root := t.TempDir()
	offer(t, root, 1, 1, identifier.AsilB)

	fw := &failingWatcher{Watcher: watcher.NewFake(), failures: 100}
	c := New(root, fw, testLogger())

	_, cerr := c.CrawlAndWatchWithRetry(identifier.AnyInstance(1, identifier.Invalid), 3)
	if cerr == nil {
		t.Fatal("expected binding failure after retries exhausted")
	}
}
