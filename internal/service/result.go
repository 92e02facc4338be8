package service

import (
	"errors"
	"fmt"

	"shortlink/internal/model"
	"shortlink/internal/repository"
)

type Status int

const (
	Success Status = iota
	NotFound
	DatabaseError
	UnexpectedError
	InvalidRequest
)

var statusNames = [...]string{
	Success:         "Success",
	NotFound:        "NotFound",
	DatabaseError:   "DatabaseError",
	UnexpectedError: "UnexpectedError",
	InvalidRequest:  "InvalidRequest",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "Unknown"
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is returned by ShortenURL and GetOriginalURL. URL is the short URL for the former
// and the original URL for the latter.
type Result struct {
	Status Status
	Code   string
	URL    string
}

type StatsResult struct {
	Status Status
	Stats  *model.Stats
}

type ListResult struct {
	Status   Status
	Mappings []model.URLMapping
}

// StoreError marks a failed store call. Any error wrapped in it is reported as DatabaseError.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

var errCodeSpaceExhausted = errors.New("no unused short code found")

// classify maps an operation error onto a status. ErrNotFound wins over StoreError so that
// absence reported through a store call is not treated as an outage.
func classify(err error) Status {
	var se *StoreError
	switch {
	case err == nil:
		return Success
	case errors.Is(err, repository.ErrNotFound):
		return NotFound
	case errors.As(err, &se):
		return DatabaseError
	default:
		return UnexpectedError
	}
}
