// Package discovery implements the Service-Discovery Client of spec.md
// §4.5: the single authoritative owner of the watcher, the search
// table, and the known-instance caches. One worker goroutine applies
// watch events; it and the public methods serialize all mutating work
// through one mutex.
package discovery

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jihwankim/commgmt/internal/crawler"
	"github.com/jihwankim/commgmt/internal/errcode"
	"github.com/jihwankim/commgmt/internal/flagfile"
	"github.com/jihwankim/commgmt/internal/identifier"
	"github.com/jihwankim/commgmt/internal/knowncache"
	"github.com/jihwankim/commgmt/internal/metrics"
	"github.com/jihwankim/commgmt/internal/qualityaware"
	"github.com/jihwankim/commgmt/internal/telemetry"
	"github.com/jihwankim/commgmt/internal/watcher"
)

// crawlRetries is the attempt count StartFindService and find-any
// expansion pass to CrawlAndWatchWithRetry (spec.md §4.4).
const crawlRetries = 3

// StopOfferSelector selects which flag files StopOfferService releases.
type StopOfferSelector int

const (
	// Both releases the flag files for every quality level this
	// instance was offered at.
	Both StopOfferSelector = iota
	// AsilQmOnly releases only the ASIL-QM flag file, leaving an
	// ASIL-B offer (if any) untouched (spec.md §8 scenario 4).
	AsilQmOnly
)

type instanceKey struct {
	service  identifier.ServiceID
	instance identifier.InstanceID
}

type watchKind int

const (
	watchServiceDir watchKind = iota
	watchInstanceDir
)

type watchRecord struct {
	kind     watchKind
	service  identifier.ServiceID
	instance identifier.InstanceID
	path     string
	searches map[identifier.Handle]struct{}
}

type search struct {
	handle   identifier.Handle
	enriched identifier.Enriched
	callback func([]knowncache.Instance)
	watches  map[watcher.Descriptor]struct{}
	reported *knowncache.Container
}

type dupeIndexEntry struct {
	watches map[watcher.Descriptor]struct{}
}

// Client is the Service-Discovery Client. A callback registered through
// StartFindService is first invoked synchronously on the calling
// goroutine, outside the client's mutex, when matches exist at
// registration time; every later invocation runs on the worker
// goroutine under the client's own mutex, where a callback must not
// call back into the same Client, or it will deadlock.
type Client struct {
	root    string
	w       watcher.Watcher
	crawl   *crawler.Crawler
	log     *telemetry.Logger
	seed    *flagfile.Disambiguator
	metrics *metrics.Collector

	mu        sync.Mutex
	offered   map[instanceKey]map[identifier.Quality]*flagfile.Handle
	searches  map[identifier.Handle]*search
	watches   map[watcher.Descriptor]*watchRecord
	dupeIndex map[string]*dupeIndexEntry
	obsolete  map[identifier.Handle]struct{}
	known     qualityaware.Pair[*knowncache.Container]
	nextHandle uint64

	sf singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient constructs a Client rooted at root and starts its worker
// goroutine. Close stops the worker and releases the watcher.
func NewClient(ctx context.Context, root string, w watcher.Watcher, log *telemetry.Logger) *Client {
	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		root:      root,
		w:         w,
		crawl:     crawler.New(root, w, log),
		log:       log,
		seed:      flagfile.NewDisambiguatorSeed(),
		offered:   make(map[instanceKey]map[identifier.Quality]*flagfile.Handle),
		searches:  make(map[identifier.Handle]*search),
		watches:   make(map[watcher.Descriptor]*watchRecord),
		dupeIndex: make(map[string]*dupeIndexEntry),
		obsolete:  make(map[identifier.Handle]struct{}),
		known: qualityaware.Pair[*knowncache.Container]{
			AsilB:  knowncache.New(),
			AsilQM: knowncache.New(),
		},
		ctx:    cctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// AttachMetrics wires a metrics.Collector to this client so the worker
// loop reports wake counts/durations and known-instance/watch gauges
// on every batch it processes. Optional; a Client with no attached
// collector behaves identically, just unobserved.
func (c *Client) AttachMetrics(m *metrics.Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Close stops the worker goroutine and closes the underlying watcher.
func (c *Client) Close() error {
	c.cancel()
	err := c.w.Close()
	c.wg.Wait()
	return err
}

// OfferService creates one flag file per supported quality level for
// enriched. A provider offering at AsilB implicitly also creates the
// AsilQM flag (fall-through quality policy, spec.md §4.5).
func (c *Client) OfferService(enriched identifier.Enriched) *errcode.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := instanceKey{enriched.Service, enriched.Instance}
	if _, exists := c.offered[key]; exists {
		return errcode.New(errcode.BindingFailure)
	}

	var qualities []identifier.Quality
	switch enriched.Quality {
	case identifier.AsilB:
		qualities = []identifier.Quality{identifier.AsilB, identifier.AsilQM}
	case identifier.AsilQM:
		qualities = []identifier.Quality{identifier.AsilQM}
	default:
		return errcode.New(errcode.BindingFailure)
	}

	handles := make(map[identifier.Quality]*flagfile.Handle, len(qualities))
	for _, q := range qualities {
		h, err := flagfile.Make(c.root, enriched.Service, enriched.Instance, q, c.seed.Next())
		if err != nil {
			for _, existing := range handles {
				existing.Release()
			}
			c.log.Warn(fmt.Sprintf("discovery: OfferService failed to create flag file: %v", err))
			return errcode.New(errcode.ServiceNotOffered)
		}
		handles[q] = h
	}
	c.offered[key] = handles
	return nil
}

// StopOfferService releases the flag files matching selector. Calling
// it for an instance that was never offered, or already fully stopped,
// is a binding failure.
func (c *Client) StopOfferService(enriched identifier.Enriched, selector StopOfferSelector) *errcode.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := instanceKey{enriched.Service, enriched.Instance}
	handles, ok := c.offered[key]
	if !ok {
		return errcode.New(errcode.BindingFailure)
	}

	switch selector {
	case Both:
		for _, h := range handles {
			h.Release()
		}
		delete(c.offered, key)
	case AsilQmOnly:
		h, exists := handles[identifier.AsilQM]
		if !exists {
			return errcode.New(errcode.BindingFailure)
		}
		h.Release()
		delete(handles, identifier.AsilQM)
		if len(handles) == 0 {
			delete(c.offered, key)
		}
	}
	return nil
}

// FindService performs a one-shot query: crawl without installing
// watches, and return the instances currently known at enriched's
// quality level.
func (c *Client) FindService(enriched identifier.Enriched) ([]knowncache.Instance, *errcode.Error) {
	if enriched.Quality != identifier.AsilB && enriched.Quality != identifier.AsilQM {
		return nil, errcode.New(errcode.BindingFailure)
	}
	result, cerr := c.crawl.Crawl(enriched)
	if cerr != nil {
		return nil, cerr
	}
	side := result.Known.AsilQM
	if enriched.Quality == identifier.AsilB {
		side = result.Known.AsilB
	}
	return side.GetKnownHandles(enriched), nil
}

// StartFindService registers a search for enriched. If an identical
// search is already in progress, its watches and cached handles are
// reused (zero extra watches). Otherwise CrawlAndWatchWithRetry
// installs new watches. If matching instances exist at call time,
// callback is invoked synchronously before StartFindService returns.
func (c *Client) StartFindService(enriched identifier.Enriched, callback func([]knowncache.Instance)) (identifier.Handle, *errcode.Error) {
	if enriched.Quality != identifier.AsilB && enriched.Quality != identifier.AsilQM {
		return 0, errcode.New(errcode.BindingFailure)
	}
	key := searchKey(enriched)

	c.mu.Lock()
	if entry, ok := c.dupeIndex[key]; ok {
		handle, matches := c.attachToExistingLocked(enriched, callback, entry)
		c.mu.Unlock()
		if len(matches) > 0 {
			callback(matches)
		}
		return handle, nil
	}
	c.mu.Unlock()

	resultAny, sfErr, _ := c.sf.Do(key, func() (any, error) {
		result, cerr := c.crawl.CrawlAndWatchWithRetry(enriched, crawlRetries)
		if cerr != nil {
			return nil, cerr
		}
		return result, nil
	})
	if sfErr != nil {
		if cerr, ok := sfErr.(*errcode.Error); ok {
			return 0, cerr
		}
		return 0, errcode.New(errcode.BindingFailure)
	}
	result := resultAny.(crawler.Result)

	c.mu.Lock()
	c.known.AsilB.Merge(result.Known.AsilB)
	c.known.AsilQM.Merge(result.Known.AsilQM)

	handle := c.allocHandleLocked()
	s := &search{
		handle:   handle,
		enriched: enriched,
		callback: callback,
		watches:  make(map[watcher.Descriptor]struct{}),
		reported: knowncache.New(),
	}
	for wd, path := range result.NewWatches {
		wr, exists := c.watches[wd]
		if !exists {
			wr = c.classifyWatchPath(enriched.Service, path)
			c.watches[wd] = wr
		}
		wr.searches[handle] = struct{}{}
		s.watches[wd] = struct{}{}
	}
	c.searches[handle] = s
	c.dupeIndex[key] = &dupeIndexEntry{watches: cloneWatchSet(s.watches)}

	matches := c.currentMatchesLocked(enriched)
	if len(matches) > 0 {
		s.reported = toContainer(matches)
	}
	c.mu.Unlock()

	if len(matches) > 0 {
		callback(matches)
	}
	return handle, nil
}

// StopFindService marks handle obsolete. Teardown is deferred to the
// next worker wake-up (spec.md §4.5); this call never blocks on the
// worker.
func (c *Client) StopFindService(handle identifier.Handle) {
	c.mu.Lock()
	c.obsolete[handle] = struct{}{}
	c.mu.Unlock()
}

func searchKey(e identifier.Enriched) string {
	return fmt.Sprintf("%d|%v|%d|%d", e.Service, e.HasInstance, e.Instance, e.Quality)
}

func cloneWatchSet(in map[watcher.Descriptor]struct{}) map[watcher.Descriptor]struct{} {
	out := make(map[watcher.Descriptor]struct{}, len(in))
	for wd := range in {
		out[wd] = struct{}{}
	}
	return out
}

func toContainer(instances []knowncache.Instance) *knowncache.Container {
	c := knowncache.New()
	for _, inst := range instances {
		c.Insert(inst.Service, inst.Instance)
	}
	return c
}

func (c *Client) allocHandleLocked() identifier.Handle {
	c.nextHandle++
	return identifier.Handle(c.nextHandle)
}

func (c *Client) sideLocked(quality identifier.Quality) *knowncache.Container {
	if quality == identifier.AsilB {
		return c.known.AsilB
	}
	return c.known.AsilQM
}

func (c *Client) currentMatchesLocked(enriched identifier.Enriched) []knowncache.Instance {
	return c.sideLocked(enriched.Quality).GetKnownHandles(enriched)
}

func (c *Client) attachToExistingLocked(enriched identifier.Enriched, callback func([]knowncache.Instance), entry *dupeIndexEntry) (identifier.Handle, []knowncache.Instance) {
	handle := c.allocHandleLocked()
	s := &search{
		handle:   handle,
		enriched: enriched,
		callback: callback,
		watches:  cloneWatchSet(entry.watches),
		reported: knowncache.New(),
	}
	for wd := range entry.watches {
		if wr, ok := c.watches[wd]; ok {
			wr.searches[handle] = struct{}{}
		}
	}
	c.searches[handle] = s

	matches := c.currentMatchesLocked(enriched)
	if len(matches) > 0 {
		s.reported = toContainer(matches)
	}
	return handle, matches
}

// classifyWatchPath determines whether path is a service directory or
// an instance directory watch, for a watch just installed for service.
func (c *Client) classifyWatchPath(service identifier.ServiceID, path string) *watchRecord {
	if path == flagfile.ServiceDir(c.root, service) {
		return &watchRecord{kind: watchServiceDir, service: service, path: path, searches: make(map[identifier.Handle]struct{})}
	}
	base := filepath.Base(path)
	instance, err := flagfile.ConvertFromStringToInstanceID(base)
	if err != nil {
		c.log.Warn(fmt.Sprintf("discovery: could not classify watch path %s: %v", path, err))
	}
	return &watchRecord{kind: watchInstanceDir, service: service, instance: instance, path: path, searches: make(map[identifier.Handle]struct{})}
}

// run is the single worker goroutine: it applies every watch event to
// searches, watches, and the known-instance caches under c.mu, the
// same mutex StartFindService holds for its own mutations (spec.md
// §4.5 / §6). Each iteration transfers obsolete searches, blocks for
// the next batch of watch events, and classifies/applies them.
func (c *Client) run() {
	defer c.wg.Done()
	for {
		if c.ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.transferObsoleteLocked()
		c.mu.Unlock()

		events, err := c.w.ReadBatch(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn(fmt.Sprintf("discovery: watcher read failed: %v", err))
			continue
		}

		start := time.Now()
		c.mu.Lock()
		c.processEventsLocked(events)
		c.reportMetricsLocked(start)
		c.mu.Unlock()
	}
}

// reportMetricsLocked updates the attached collector, if any, after
// one worker wake-up has been fully processed.
func (c *Client) reportMetricsLocked(start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.WorkerWakeTotal.Inc()
	c.metrics.WorkerWakeDuration.Observe(time.Since(start).Seconds())
	c.metrics.WatchCount.Set(float64(len(c.watches)))
	c.metrics.KnownInstances.WithLabelValues(identifier.AsilB.String()).Set(float64(c.known.AsilB.Len()))
	c.metrics.KnownInstances.WithLabelValues(identifier.AsilQM.String()).Set(float64(c.known.AsilQM.Len()))
}

// transferObsoleteLocked tears down every search marked obsolete by
// StopFindService since the last wake-up: it detaches the search from
// each watch it referenced and removes any watch left with no
// remaining search (spec.md §4.5 step 1).
func (c *Client) transferObsoleteLocked() {
	if len(c.obsolete) == 0 {
		return
	}
	for handle := range c.obsolete {
		s, ok := c.searches[handle]
		if !ok {
			continue
		}
		for wd := range s.watches {
			wr, ok := c.watches[wd]
			if !ok {
				continue
			}
			delete(wr.searches, handle)
			if len(wr.searches) == 0 {
				if err := c.w.RemoveWatch(wd); err != nil {
					c.log.Warn(fmt.Sprintf("discovery: RemoveWatch(%d) failed: %v", wd, err))
				}
				delete(c.watches, wd)
			}
		}
		delete(c.searches, handle)
	}
	for key, entry := range c.dupeIndex {
		stillLive := false
		for wd := range entry.watches {
			if _, ok := c.watches[wd]; ok {
				stillLive = true
				break
			}
		}
		if !stillLive {
			delete(c.dupeIndex, key)
		}
	}
	c.obsolete = make(map[identifier.Handle]struct{})
}

// processEventsLocked classifies one batch of watch events into
// deletions and creations, applies each to the known-instance caches,
// and dispatches callbacks for every search whose matching set changed
// (spec.md §4.5 steps 3-6).
func (c *Client) processEventsLocked(events []watcher.Event) {
	impacted := make(map[identifier.Handle]struct{})

	for _, e := range events {
		if e.Mask&watcher.QueueOverflow != 0 {
			c.log.Fatal("discovery: watcher event queue overflowed, known-instance cache can no longer be trusted", nil)
		}
		if e.Mask&watcher.Create != 0 {
			c.handleCreationLocked(e, impacted)
		}
		if e.Mask&(watcher.Delete|watcher.Ignored) != 0 {
			c.handleDeletionLocked(e, impacted)
		}
	}

	c.dispatchLocked(impacted)
}

func (c *Client) handleDeletionLocked(e watcher.Event, impacted map[identifier.Handle]struct{}) {
	wr, ok := c.watches[e.Descriptor]
	if !ok {
		return
	}

	switch wr.kind {
	case watchInstanceDir:
		if e.Name == "" {
			c.log.Fatal(fmt.Sprintf("discovery: watched instance directory %s disappeared, treating as tamper", wr.path), nil)
			return
		}
		q := flagfile.ParseQualityTypeFromString(e.Name)
		if q == identifier.Invalid {
			c.log.Warn(fmt.Sprintf("discovery: unrecognized flag file %s deleted under %s, ignoring", e.Name, wr.path))
			return
		}
		switch q {
		case identifier.AsilB:
			c.known.AsilB.Remove(wr.service, wr.instance)
		case identifier.AsilQM:
			c.known.AsilQM.Remove(wr.service, wr.instance)
		}
		for h := range wr.searches {
			impacted[h] = struct{}{}
		}
	case watchServiceDir:
		c.log.Warn(fmt.Sprintf("discovery: unexpected deletion event under service dir %s (name=%q)", wr.path, e.Name))
	}
}

func (c *Client) handleCreationLocked(e watcher.Event, impacted map[identifier.Handle]struct{}) {
	wr, ok := c.watches[e.Descriptor]
	if !ok {
		return
	}

	switch wr.kind {
	case watchServiceDir:
		instance, err := flagfile.ConvertFromStringToInstanceID(e.Name)
		if err != nil {
			c.log.Warn(fmt.Sprintf("discovery: unparsable instance dir %q created under %s, skipping", e.Name, wr.path))
			return
		}
		specific := identifier.Specific(wr.service, instance, identifier.Invalid)
		result, cerr := c.crawl.CrawlAndWatchWithRetry(specific, crawlRetries)
		if cerr != nil {
			c.log.Warn(fmt.Sprintf("discovery: crawl-and-watch for newly created instance %d failed: %v", instance, cerr))
			return
		}
		c.known.AsilB.Merge(result.Known.AsilB)
		c.known.AsilQM.Merge(result.Known.AsilQM)
		for newWd, path := range result.NewWatches {
			nr, exists := c.watches[newWd]
			if !exists {
				nr = c.classifyWatchPath(wr.service, path)
				c.watches[newWd] = nr
			}
			for h := range wr.searches {
				nr.searches[h] = struct{}{}
				impacted[h] = struct{}{}
			}
		}
	case watchInstanceDir:
		q := flagfile.ParseQualityTypeFromString(e.Name)
		if q == identifier.Invalid {
			c.log.Warn(fmt.Sprintf("discovery: unrecognized flag file %s created under %s, ignoring", e.Name, wr.path))
			return
		}
		switch q {
		case identifier.AsilB:
			c.known.AsilB.Insert(wr.service, wr.instance)
			c.known.AsilQM.Insert(wr.service, wr.instance)
		case identifier.AsilQM:
			c.known.AsilQM.Insert(wr.service, wr.instance)
		}
		for h := range wr.searches {
			impacted[h] = struct{}{}
		}
	}
}

// dispatchLocked invokes the callback for every impacted search whose
// matching set actually changed since it was last reported, skipping
// searches already marked obsolete (spec.md §4.5 step 6: "dispatch
// only when the known-handle set changed").
func (c *Client) dispatchLocked(impacted map[identifier.Handle]struct{}) {
	for h := range impacted {
		if _, gone := c.obsolete[h]; gone {
			continue
		}
		s, ok := c.searches[h]
		if !ok {
			continue
		}
		matches := c.currentMatchesLocked(s.enriched)
		current := toContainer(matches)
		if s.reported.Equal(current) {
			continue
		}
		s.reported = current
		s.callback(matches)
	}
}
