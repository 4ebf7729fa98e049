package persistence

import (
	"time"

	"github.com/asaidimu/go-dynaquery/core/query"
)

// queryScope is what an operation knows about the query it runs, copied
// into every event it emits.
type queryScope struct {
	id        string
	operation string
	entity    string
	table     string
	compiled  query.CompiledQuery
}

func createEvent(eventType QueryEventType, scope queryScope, output any, err *string, startTime time.Time) QueryEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	return QueryEvent{
		ID:        scope.id,
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Operation: scope.operation,
		Entity:    scope.entity,
		Table:     scope.table,
		Where:     scope.compiled.Where,
		OrderBy:   scope.compiled.OrderBy,
		Params:    scope.compiled.Params,
		Output:    output,
		Error:     err,
		Duration:  duration,
	}
}
