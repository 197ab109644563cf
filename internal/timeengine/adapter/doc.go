// Package adapter contains implementations of the stores defined in app:
// DynamoDB tables for the remote store, and Redis or SQLite slots for the
// local snapshot cache.
package adapter

import "github.com/aelexs/time-engine/internal/observability"

var tracer = observability.Tracer("adapter")
