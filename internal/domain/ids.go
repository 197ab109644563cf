// Package domain contains the time engine's entity types and pure rules.
// No infrastructure dependencies allowed.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// UserID is a value object representing the authenticated owner of engine data.
// Always valid in memory - use NewUserID to construct.
type UserID struct {
	value string
}

// NewUserID creates a UserID from a raw string, validating it is a valid UUID.
func NewUserID(raw string) (UserID, error) {
	if raw == "" {
		return UserID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return UserID{}, fmt.Errorf("invalid user ID %q: %w", raw, ErrInvalidID)
	}
	return UserID{value: raw}, nil
}

// MustUserID creates a UserID, panicking on invalid input. Use only in tests.
func MustUserID(raw string) UserID {
	id, err := NewUserID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (id UserID) String() string { return id.value }
func (id UserID) IsZero() bool   { return id.value == "" }

// EntryID identifies a stopwatch session, bedtime log or alarm. Entry IDs are
// assigned by the remote store when a row is first written.
type EntryID struct {
	value string
}

// NewEntryID creates an EntryID from a raw string, validating it is a valid UUID.
func NewEntryID(raw string) (EntryID, error) {
	if raw == "" {
		return EntryID{}, ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return EntryID{}, fmt.Errorf("invalid entry ID %q: %w", raw, ErrInvalidID)
	}
	return EntryID{value: raw}, nil
}

// GenerateEntryID creates a new random EntryID.
func GenerateEntryID() EntryID {
	return EntryID{value: uuid.NewString()}
}

func (id EntryID) String() string { return id.value }
func (id EntryID) IsZero() bool   { return id.value == "" }
