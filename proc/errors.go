package proc

import (
	"errors"
	"fmt"
	"time"
)

// Validation and lifecycle errors. These are answered directly to the user
// and never logged as failures.
var (
	ErrEmptyQueue             = errors.New("the queue is empty")
	ErrOutOfRange             = errors.New("position is out of range")
	ErrNotPlaying             = errors.New("nothing is playing")
	ErrAlreadyPaused          = errors.New("playback is already paused")
	ErrAlreadyPlaying         = errors.New("playback is not paused")
	ErrConfirmationTimeout    = errors.New("confirmation timed out")
	ErrDisplaySurfaceNotFound = errors.New("now playing message no longer exists")
	ErrSessionClosed          = errors.New("session is closed")
)

// OutOfRangeError reports a 1-based queue position the queue does not have.
type OutOfRangeError struct {
	Position int
	Len      int
}

func (e *OutOfRangeError) Error() string {
	if e.Len == 0 {
		return fmt.Sprintf("position %d is out of range: the queue is empty", e.Position)
	}
	return fmt.Sprintf("position %d is out of range (1-%d)", e.Position, e.Len)
}

func (e *OutOfRangeError) Is(target error) bool { return target == ErrOutOfRange }

// ResolutionError wraps a media resolver failure or timeout.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransportError wraps a voice transport failure for a single track.
type TransportError struct {
	Title string
	Err   error
}

func (e *TransportError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("playback failed: %v", e.Err)
	}
	return fmt.Sprintf("playback of %q failed: %v", e.Title, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError is returned by a DisplaySurface when the platform asks the
// caller to slow down. RetryAfter is zero when the platform gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
