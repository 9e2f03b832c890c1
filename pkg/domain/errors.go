package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSeason is returned when a rollover target does not advance the season.
	ErrInvalidSeason = errors.New("invalid season")
	// ErrMalformedBackup is returned when a backup document fails to parse or validate.
	ErrMalformedBackup = errors.New("malformed backup")
	// ErrNoSession is returned by operations that require an authenticated session.
	ErrNoSession = errors.New("no session")
	// ErrInvalidRow is returned by the mapper when a remote row has the wrong shape.
	ErrInvalidRow = errors.New("invalid remote row")
)

// NotFoundError reports a missing entity by id.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }
