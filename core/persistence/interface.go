package persistence

import (
	"context"
	"errors"

	"github.com/asaidimu/go-dynaquery/core/schema"
)

// ErrNotFound is returned by the "first" operations when no row matched.
var ErrNotFound = errors.New("no rows matched the query")

// QueryEventType defines the possible event types emitted by an Executor.
type QueryEventType string

const (
	QueryStart             QueryEventType = "query:start"
	QuerySuccess           QueryEventType = "query:success"
	QueryFailed            QueryEventType = "query:failed"
	TransactionStart       QueryEventType = "transaction:start"
	TransactionSuccess     QueryEventType = "transaction:success"
	TransactionFailed      QueryEventType = "transaction:failed"
	SubscriptionRegister   QueryEventType = "subscription:register"
	SubscriptionUnregister QueryEventType = "subscription:unregister"
)

// QueryEvent represents events emitted while executing dynamic queries.
// Output is kept as 'any' since it depends on the operation.
type QueryEvent struct {
	ID        string         `json:"id"`                 // Shared by the start event and the outcome event of one operation.
	Type      QueryEventType `json:"type"`               // The type of event (e.g., 'query:start').
	Timestamp int64          `json:"timestamp"`          // Timestamp when the event occurred (Unix milliseconds).
	Operation string         `json:"operation"`          // The operation being performed (e.g., 'select', 'count').
	Entity    string         `json:"entity,omitempty"`   // Entity type the query was issued for.
	Table     string         `json:"table,omitempty"`    // Table or view selected from.
	Where     string         `json:"where,omitempty"`    // Rendered WHERE body.
	OrderBy   string         `json:"orderBy,omitempty"`  // Rendered ORDER BY body.
	Params    map[string]any `json:"params,omitempty"`   // Bound parameters.
	Output    any            `json:"output,omitempty"`   // Data returned by the operation (if applicable).
	Error     *string        `json:"error,omitempty"`    // Error message if the operation failed.
	Duration  *int64         `json:"duration,omitempty"` // Duration of the operation in milliseconds.
}

// EventCallbackFunction is invoked for every event a subscription matches.
type EventCallbackFunction func(ctx context.Context, event QueryEvent) error

// SubscriptionInfo describes a subscription configuration.
type SubscriptionInfo struct {
	Id          *string        `json:"id,omitempty"`
	Event       QueryEventType `json:"event"`                 // The event subscribed to.
	Label       *string        `json:"label,omitempty"`       // Optional short identifier.
	Description *string        `json:"description,omitempty"` // Optional description.
	Unsubscribe func()         `json:"-"`
}

// RegisterSubscriptionOptions defines options for registering a subscription.
type RegisterSubscriptionOptions struct {
	Event       QueryEventType `json:"event"`
	Label       *string        `json:"label,omitempty"`
	Description *string        `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

// PageResult is one window of rows plus the total number of matching rows.
type PageResult struct {
	Rows  []schema.Document `json:"rows"`
	Total int64             `json:"total"`
}
