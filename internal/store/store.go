// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
)

// KV is a string key-value store. It plays the role browser local storage
// plays for the widget: one record per fixed key.
type KV interface {
	// GetValue returns the value stored under key and whether it exists.
	GetValue(ctx context.Context, key string) (string, bool, error)

	// PutValue creates or replaces the value stored under key.
	PutValue(ctx context.Context, key, value string) error

	// DeleteValue removes key. Deleting a missing key is not an error.
	DeleteValue(ctx context.Context, key string) error
}

// Repository defines the interface for persisting widget state, users and tickets.
type Repository interface {
	KV

	// GetUser retrieves a user by their user ID. Returns nil, nil when missing.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateTicket inserts a new ticket. The ticket ID must be unique.
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error

	// GetTicket retrieves a ticket by ID. Returns nil, nil when missing.
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
