// Package crawler implements the flag-file crawler of spec.md §4.4:
// enumerating currently-offered instances on disk, and (optionally)
// installing filesystem watches on the paths it visits.
package crawler

import (
	"fmt"
	"os"
	"time"

	"github.com/jihwankim/commgmt/internal/errcode"
	"github.com/jihwankim/commgmt/internal/flagfile"
	"github.com/jihwankim/commgmt/internal/identifier"
	"github.com/jihwankim/commgmt/internal/knowncache"
	"github.com/jihwankim/commgmt/internal/qualityaware"
	"github.com/jihwankim/commgmt/internal/telemetry"
	"github.com/jihwankim/commgmt/internal/watcher"
)

// RetryBackoff is the fixed back-off CrawlAndWatchWithRetry sleeps
// between attempts (spec.md §4.4: "~50 ms").
const RetryBackoff = 50 * time.Millisecond

// Result is the outcome of a Crawl/CrawlAndWatch call.
type Result struct {
	Known qualityaware.Pair[*knowncache.Container]
	// NewWatches holds every watch installed by this call, keyed by
	// descriptor, empty unless add_watch was requested.
	NewWatches map[watcher.Descriptor]string
}

func newResult() Result {
	return Result{
		Known: qualityaware.Pair[*knowncache.Container]{
			AsilB:  knowncache.New(),
			AsilQM: knowncache.New(),
		},
		NewWatches: make(map[watcher.Descriptor]string),
	}
}

// Crawler enumerates flag files under root and, when requested, installs
// watches through w.
type Crawler struct {
	root string
	w    watcher.Watcher
	log  *telemetry.Logger
}

// New constructs a Crawler rooted at root.
func New(root string, w watcher.Watcher, log *telemetry.Logger) *Crawler {
	return &Crawler{root: root, w: w, log: log}
}

// Crawl enumerates currently-offered instances matching enriched without
// installing any watch (spec.md §4.4).
func (c *Crawler) Crawl(enriched identifier.Enriched) (Result, *errcode.Error) {
	return c.crawl(enriched, false)
}

// CrawlAndWatch enumerates like Crawl but additionally installs watches:
// for a find-any request, on the service directory and on each
// discovered instance directory; for a specific instance, only on that
// instance directory (the service directory is not watched).
func (c *Crawler) CrawlAndWatch(enriched identifier.Enriched) (Result, *errcode.Error) {
	return c.crawl(enriched, true)
}

// CrawlAndWatchWithRetry retries CrawlAndWatch up to n times with
// RetryBackoff between attempts, returning the last error after
// exhaustion. Races with a provider mid-offer are expected and benign
// (spec.md §4.4).
func (c *Crawler) CrawlAndWatchWithRetry(enriched identifier.Enriched, n int) (Result, *errcode.Error) {
	var result Result
	var lastErr *errcode.Error
	for attempt := 0; attempt < n; attempt++ {
		result, lastErr = c.CrawlAndWatch(enriched)
		if lastErr == nil {
			return result, nil
		}
		if attempt < n-1 {
			time.Sleep(RetryBackoff)
		}
	}
	return result, lastErr
}

func (c *Crawler) crawl(enriched identifier.Enriched, addWatch bool) (Result, *errcode.Error) {
	if enriched.Quality != identifier.Invalid && enriched.Quality != identifier.AsilB && enriched.Quality != identifier.AsilQM {
		return Result{}, errcode.New(errcode.BindingFailure)
	}

	result := newResult()
	serviceLevel := enriched.ServiceLevel()
	serviceDir := flagfile.ServiceDir(c.root, serviceLevel.Service)

	if addWatch {
		searchPath := serviceDir
		if enriched.HasInstance {
			searchPath = flagfile.InstanceDir(c.root, enriched.Service, enriched.Instance)
		}
		wd, err := c.w.AddWatch(searchPath, watcher.Create|watcher.Delete)
		if err != nil {
			c.logPermissionDiagnostics(searchPath, err)
			return Result{}, errcode.New(errcode.BindingFailure)
		}
		result.NewWatches[wd] = searchPath
	}

	var candidates []identifier.InstanceID
	if enriched.HasInstance {
		candidates = []identifier.InstanceID{enriched.Instance}
	} else {
		entries, err := os.ReadDir(serviceDir)
		if err != nil {
			if os.IsNotExist(err) {
				return result, nil
			}
			c.log.Warn(fmt.Sprintf("crawler: unexpected I/O error listing %s: %v", serviceDir, err))
			return Result{}, errcode.New(errcode.BindingFailure)
		}
		for _, e := range entries {
			if !e.IsDir() {
				c.log.Warn(fmt.Sprintf("crawler: non-directory entry %s in service dir, skipping", e.Name()))
				continue
			}
			instance, perr := flagfile.ConvertFromStringToInstanceID(e.Name())
			if perr != nil {
				c.log.Warn(fmt.Sprintf("crawler: unparsable instance dir %s, skipping", e.Name()))
				continue
			}
			candidates = append(candidates, instance)

			if addWatch {
				instDir := flagfile.InstanceDir(c.root, enriched.Service, instance)
				wd, err := c.w.AddWatch(instDir, watcher.Create|watcher.Delete)
				if err != nil {
					c.logPermissionDiagnostics(instDir, err)
					return Result{}, errcode.New(errcode.BindingFailure)
				}
				result.NewWatches[wd] = instDir
			}
		}
	}

	for _, instance := range candidates {
		for _, q := range []identifier.Quality{identifier.AsilB, identifier.AsilQM} {
			if enriched.Quality != identifier.Invalid && enriched.Quality != q {
				continue
			}
			exists, err := flagfile.Exists(c.root, enriched.Service, instance, q)
			if err != nil {
				c.log.Warn(fmt.Sprintf("crawler: unexpected I/O error checking %d/%d: %v", enriched.Service, instance, err))
				return Result{}, errcode.New(errcode.BindingFailure)
			}
			if !exists {
				continue
			}
			switch q {
			case identifier.AsilB:
				result.Known.AsilB.Insert(enriched.Service, instance)
				// Fall-through: an ASIL-B provider also serves ASIL-QM.
				result.Known.AsilQM.Insert(enriched.Service, instance)
			case identifier.AsilQM:
				result.Known.AsilQM.Insert(enriched.Service, instance)
			}
		}
	}

	return result, nil
}

// logPermissionDiagnostics logs the current octal permissions of path
// when a watch could not be installed, to help diagnose EPERM (spec.md
// §4.4 / §6).
func (c *Crawler) logPermissionDiagnostics(path string, cause error) {
	info, statErr := os.Stat(path)
	if statErr != nil {
		c.log.Warn(fmt.Sprintf("crawler: add watch on %s failed: %v (stat also failed: %v)", path, cause, statErr))
		return
	}
	c.log.Warn(fmt.Sprintf("crawler: add watch on %s failed: %v (mode=%04o)", path, cause, info.Mode().Perm()))
}
