// Package core provides fundamental utilities shared by the furlong services.
// This file contains option functions for customizing log entries.
package core

import (
	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong/domain"
)

// LogOption customizes a log entry before it is persisted.
type LogOption func(log *domain.Log) error

// LogWithContext is an option to add a context map to a log entry.
func LogWithContext(context map[string]any) LogOption {
	return func(log *domain.Log) error {
		log.Context = context
		return nil
	}
}

// LogWithRaceID is an option to associate a log entry with a race.
func LogWithRaceID(id uuid.UUID) LogOption {
	return func(log *domain.Log) error {
		log.RaceID = &id
		return nil
	}
}

// LogWithUserID is an option to associate a log entry with the user that triggered it.
func LogWithUserID(userID string) LogOption {
	return func(log *domain.Log) error {
		log.UserID = userID
		return nil
	}
}
