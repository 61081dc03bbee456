package handlers

import (
	"io"
	"log/slog"
	"sync"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/scanner"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeEngine records what the handlers asked of it.
type fakeEngine struct {
	mu       sync.Mutex
	requests []scanner.Request
	canceled int
	scanning bool
	current  string
	last     string
	results  []scanner.Outcome
	startErr error
}

func (f *fakeEngine) Start(req scanner.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.startErr != nil {
		return "", f.startErr
	}
	f.scanning = true
	f.current = "scan-1"
	f.last = "scan-1"
	return f.current, nil
}

func (f *fakeEngine) StartIfIdle(req scanner.Request) (string, bool, error) {
	if f.IsScanning() {
		return "", false, nil
	}
	id, err := f.Start(req)
	return id, err == nil, err
}

func (f *fakeEngine) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled++
	f.scanning = false
	f.current = ""
}

func (f *fakeEngine) IsScanning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scanning
}

func (f *fakeEngine) CurrentID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeEngine) LastID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fakeEngine) Results() []scanner.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results
}

var rangeErr = errors.NewRangeError("Invalid address range", "10.0.0.0/40")
