// Package testing provides test helpers for atlas packages.
//
// Goroutines must not call t.Fatal or t.FailNow: those call runtime.Goexit,
// which ends only the calling goroutine. GoroutineTest collects errors from
// goroutines and reports them on the test goroutine instead.
package testing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest runs functions in goroutines and fails the test on Wait if
// any of them returned an error.
//
//	gt := atlastest.NewGoroutineTest(t)
//	for i := 0; i < 8; i++ {
//	    gt.Go(func() error {
//	        return h.View(func(c *collection.Collection) error { ... })
//	    })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      *testing.T
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest whose context is cancelled by Wait.
func NewGoroutineTest(t *testing.T) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// NewGoroutineTestWithTimeout creates a GoroutineTest whose context also
// expires after timeout.
func NewGoroutineTestWithTimeout(t *testing.T, timeout time.Duration) *GoroutineTest {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine and records its error.
func (gt *GoroutineTest) Go(fn func() error) {
	gt.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn in a goroutine with the test context.
func (gt *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	gt.wg.Add(1)
	go func() {
		defer gt.wg.Done()
		if err := fn(gt.ctx); err != nil {
			gt.mu.Lock()
			gt.errs = append(gt.errs, err)
			gt.mu.Unlock()
		}
	}()
}

// Wait blocks until every goroutine returned and fails the test if any
// returned an error.
func (gt *GoroutineTest) Wait() {
	gt.t.Helper()
	gt.wg.Wait()
	gt.cancel()

	gt.mu.Lock()
	defer gt.mu.Unlock()
	if len(gt.errs) == 0 {
		return
	}
	gt.t.Errorf("%d goroutine(s) failed:", len(gt.errs))
	for i, err := range gt.errs {
		gt.t.Errorf("  [%d] %v", i+1, err)
	}
	gt.t.FailNow()
}

// Context returns the context passed to GoWithContext functions.
func (gt *GoroutineTest) Context() context.Context {
	return gt.ctx
}

// =============================================================================
// Instrument Fixtures
// =============================================================================

// Bar is one CSV row of an instrument fixture.
type Bar struct {
	Date  string
	Close float64
}

// InstrumentCSV renders bars as a "Date,close" CSV file.
func InstrumentCSV(bars ...Bar) string {
	var b strings.Builder
	b.WriteString("Date,close\n")
	for _, bar := range bars {
		fmt.Fprintf(&b, "%s,%g\n", bar.Date, bar.Close)
	}
	return b.String()
}

// InstrumentDir writes files (file name to content) into a fresh temporary
// directory and returns its path.
func InstrumentDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(files[name]), 0644); err != nil {
			t.Fatalf("write fixture %s: %v", name, err)
		}
	}
	return dir
}

// =============================================================================
// Timeout Helper
// =============================================================================

// WithTimeout runs fn and returns its error, or a timeout error if fn does
// not finish in time.
func WithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("operation timed out after %v", timeout)
	}
}
