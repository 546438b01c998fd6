package notify

import (
	"context"
	"log/slog"
)

// Channel delivers one rendered message somewhere.
type Channel interface {
	// Name identifies the channel in dispatch results and logs.
	Name() string
	// Send delivers the message. It must honor ctx cancellation.
	Send(ctx context.Context, event Event, msg Message) error
}

// Route pairs a channel with its delivery policy.
type Route struct {
	Channel Channel
	// MinSeverity is the lowest severity this channel receives.
	MinSeverity Severity
	// Kinds restricts delivery to these event kinds. Empty means all kinds.
	Kinds []Kind
}

func (r Route) applies(event Event) bool {
	if !event.Severity.AtLeast(r.MinSeverity) {
		return false
	}
	if len(r.Kinds) == 0 {
		return true
	}
	for _, k := range r.Kinds {
		if k == event.Kind {
			return true
		}
	}
	return false
}

// Dispatcher renders events once and hands them to every applicable channel.
type Dispatcher struct {
	logger *slog.Logger
	routes []Route
}

// NewDispatcher creates a dispatcher over the given routes.
func NewDispatcher(logger *slog.Logger, routes ...Route) *Dispatcher {
	return &Dispatcher{logger: logger, routes: routes}
}

// Notify delivers the event to every channel whose route matches its kind and
// severity. The result maps channel name to delivery success; channels are
// isolated from each other, so one failure never stops the rest. Failures are
// logged, never retried.
func (d *Dispatcher) Notify(ctx context.Context, event Event) map[string]bool {
	msg := Render(event)
	results := make(map[string]bool)

	for _, route := range d.routes {
		if !route.applies(event) {
			continue
		}
		name := route.Channel.Name()
		if err := route.Channel.Send(ctx, event, msg); err != nil {
			d.logger.Warn("notification delivery failed",
				"channel", name, "kind", string(event.Kind), "error", err)
			results[name] = false
			continue
		}
		d.logger.Debug("notification delivered", "channel", name, "kind", string(event.Kind))
		results[name] = true
	}

	return results
}
