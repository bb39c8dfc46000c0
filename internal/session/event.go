package session

import (
	"context"

	"github.com/funnyzak/gqltap/internal/printer"
	"github.com/funnyzak/gqltap/pkg/filter"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/funnyzak/gqltap/pkg/stats"
)

// EventKind identifies what changed in the session.
type EventKind string

const (
	// EventRow carries a newly recorded row and the updated stats.
	EventRow EventKind = "row"
	// EventStats carries a stats refresh from the one-second tick.
	EventStats EventKind = "stats"
	// EventReset follows navigation or clear.
	EventReset EventKind = "reset"
	// EventState follows pause, preserve-log or filter changes.
	EventState EventKind = "state"
	// EventDropped reports a request that was not recorded.
	EventDropped EventKind = "dropped"
)

// DropReason explains why Handle discarded a request.
type DropReason string

const (
	DropPaused        DropReason = "paused"
	DropIgnoredMethod DropReason = "ignored_method"
	DropIgnoredURL    DropReason = "ignored_url"
)

// State is the user-controlled part of the session.
type State struct {
	Paused      bool            `json:"paused"`
	PreserveLog bool            `json:"preserve_log"`
	Filters     []filter.Filter `json:"filters"`
}

// Event is delivered to every sink after the session changes.
type Event struct {
	Kind   EventKind      `json:"type"`
	Row    *inspect.Row   `json:"row,omitempty"`
	Stats  stats.Snapshot `json:"stats"`
	State  State          `json:"state"`
	Notice printer.Notice `json:"notice,omitempty"`
	Reason DropReason     `json:"reason,omitempty"`
}

// Sink receives session events. Publish must not block for long: the
// controller waits for every sink before handling the next request.
type Sink interface {
	Publish(context.Context, Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(context.Context, Event) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// PrinterSink renders rows and notices through p. Stats ticks are skipped so
// the terminal is not flooded once a second.
func PrinterSink(p printer.Printer) Sink {
	return SinkFunc(func(_ context.Context, ev Event) error {
		switch ev.Kind {
		case EventRow:
			if ev.Row != nil && ev.Row.Visible {
				return p.PrintRow(ev.Row)
			}
		case EventReset, EventState:
			if ev.Notice != "" {
				return p.PrintNotice(ev.Notice)
			}
		}
		return nil
	})
}
