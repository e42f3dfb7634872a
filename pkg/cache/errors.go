package cache

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMiss is matched by errors returned for keys that were never stored, or were evicted or cleared.
	ErrMiss = errors.New("cache miss")
	// ErrExpired is matched by errors returned for keys whose TTL elapsed; the entry is gone once this is returned.
	ErrExpired = errors.New("cache entry expired")
	// ErrFull is matched by errors returned when Set could not make room for a new key.
	ErrFull = errors.New("cache is full")
)

// MissError is returned by Get when the key is not stored.
type MissError struct {
	Key string
}

func (e *MissError) Error() string { return fmt.Sprintf("%v: %q", ErrMiss, e.Key) }

func (e *MissError) Unwrap() error { return ErrMiss }

// ExpiredError is returned by Get when the key was stored but its TTL elapsed.
type ExpiredError struct {
	Key       string
	CachedAt  time.Time
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("%v: %q (cached at %s, expired at %s)", ErrExpired, e.Key,
		e.CachedAt.Format(time.RFC3339Nano), e.ExpiresAt.Format(time.RFC3339Nano))
}

func (e *ExpiredError) Unwrap() error { return ErrExpired }

// FullError is returned by Set when no entry could be evicted to make room for a new key.
type FullError struct {
	MaxSize     int
	CurrentSize int
}

func (e *FullError) Error() string {
	return fmt.Sprintf("%v: max size %d, current size %d", ErrFull, e.MaxSize, e.CurrentSize)
}

func (e *FullError) Unwrap() error { return ErrFull }

// ShouldLoad reports whether err tells a cache-aside caller to load the value from its source of truth.
// Misses and expirations are treated the same way.
func ShouldLoad(err error) bool {
	return errors.Is(err, ErrMiss) || errors.Is(err, ErrExpired)
}
