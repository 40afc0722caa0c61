// Package testutil provides shared fixtures for zenify tests.
package testutil

import (
	"sync"
	"sync/atomic"
)

// TestService is a plain service type for binding tests.
type TestService struct {
	ID   string
	Data string
}

// NewTestService creates a TestService with a fixed id.
func NewTestService() *TestService {
	return &TestService{ID: "test-service"}
}

// TestDatabase simulates a connection-holding dependency.
type TestDatabase struct {
	DSN    string
	closed atomic.Int32
}

func (d *TestDatabase) Close() error {
	d.closed.Add(1)
	return nil
}

// Closed reports whether Close has been called at least once.
func (d *TestDatabase) Closed() bool {
	return d.closed.Load() > 0
}

// CloseCount returns the number of Close calls.
func (d *TestDatabase) CloseCount() int {
	return int(d.closed.Load())
}

// TrackingDisposable counts Close calls and optionally fails them.
type TrackingDisposable struct {
	Err    error
	closes atomic.Int32
}

func (d *TrackingDisposable) Close() error {
	d.closes.Add(1)
	return d.Err
}

// CloseCount returns the number of Close calls.
func (d *TrackingDisposable) CloseCount() int {
	return int(d.closes.Load())
}

// PanickingDisposable panics on Close.
type PanickingDisposable struct{}

func (PanickingDisposable) Close() error {
	panic("disposable close panic")
}

// CallRecorder records invocations in order, safely across goroutines.
type CallRecorder struct {
	mu    sync.Mutex
	calls []string
}

// Record appends a call label.
func (r *CallRecorder) Record(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, label)
}

// Calls returns a copy of the recorded labels.
func (r *CallRecorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls were recorded.
func (r *CallRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
