package circuit_breaker

import (
	"errors"
	"testing"
	"time"
)

func TestTripsOpenAfterMaxFailures(t *testing.T) {
	b := New(Config{MaxFailures: 2, ResetTimeout: 50 * time.Millisecond})
	failing := errors.New("boom")

	if err := b.Execute(func() error { return failing }); err != failing {
		t.Fatalf("expected passthrough error, got %v", err)
	}
	if b.IsOpen() {
		t.Fatal("should not be open after one failure")
	}
	if err := b.Execute(func() error { return failing }); err != failing {
		t.Fatalf("expected passthrough error, got %v", err)
	}
	if !b.IsOpen() {
		t.Fatal("expected breaker to be open after reaching max failures")
	}
	if err := b.Execute(func() error { return nil }); err != ErrOpen {
		t.Fatalf("expected ErrOpen while still within reset timeout, got %v", err)
	}
}

func TestHalfOpenRecoversOnSuccess(t *testing.T) {
	b := New(Config{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})
	failing := errors.New("boom")
	b.Execute(func() error { return failing })
	if !b.IsOpen() {
		t.Fatal("expected open after first failure with MaxFailures=1")
	}
	time.Sleep(20 * time.Millisecond)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected the half-open probe to succeed, got %v", err)
	}
	if b.IsOpen() {
		t.Fatal("expected breaker to close after a successful half-open probe")
	}
}
