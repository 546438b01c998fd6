package notify

import (
	"fmt"
	"sort"
	"strings"
)

// Message is a rendered event: a subject and multi-line body for rich
// channels, plus a single-line short form for constrained ones.
type Message struct {
	Subject string
	Body    string
	Short   string
}

// shortLimit bounds the short form, sized for a single SMS segment pair.
const shortLimit = 160

// Render produces the message for an event. There is one template per event
// kind; unknown kinds fall back to a generic rendering of the payload.
func Render(event Event) Message {
	var subject string
	var lines []string

	switch event.Kind {
	case KindExecutionStarted:
		subject = "Contract reprocessing started"
		lines = []string{
			fmt.Sprintf("Execution %s accepted and running.", event.ExecutionID),
			fmt.Sprintf("Triggered by: %s", payloadValue(event, "triggered_by")),
		}
	case KindExecutionCompleted:
		subject = "Contract reprocessing completed"
		lines = []string{
			fmt.Sprintf("Execution %s finished as %s.", event.ExecutionID, payloadValue(event, "state")),
			fmt.Sprintf("Contracts: %s succeeded, %s failed of %s.",
				payloadValue(event, "queue_succeeded"),
				payloadValue(event, "queue_failed"),
				payloadValue(event, "queue_total")),
			fmt.Sprintf("Took %s.", payloadValue(event, "duration")),
		}
	case KindExecutionFailed:
		subject = "Contract reprocessing failed"
		lines = []string{
			fmt.Sprintf("Execution %s failed at stage %s.", event.ExecutionID, payloadValue(event, "stage")),
			fmt.Sprintf("Error: %s", payloadValue(event, "error")),
		}
	case KindQueueEmpty:
		subject = "No contracts need reprocessing"
		lines = []string{
			fmt.Sprintf("Execution %s: analysis found no contracts requiring adjustment.", event.ExecutionID),
		}
	case KindPersistenceDegraded:
		subject = "Execution persistence degraded"
		lines = []string{
			fmt.Sprintf("Both store backends rejected a write (%s).", payloadValue(event, "operation")),
			fmt.Sprintf("Error: %s", payloadValue(event, "error")),
			"Recent execution history may be incomplete.",
		}
	case KindDailyReport:
		subject = "Daily reprocessing report"
		lines = []string{
			fmt.Sprintf("Total executions: %s", payloadValue(event, "total_executions")),
			fmt.Sprintf("Started today: %s", payloadValue(event, "started_today")),
			fmt.Sprintf("Success rate: %s%%", payloadValue(event, "success_rate")),
			fmt.Sprintf("Contracts processed this month: %s", payloadValue(event, "items_this_month")),
		}
	default:
		subject = fmt.Sprintf("Pipeline event: %s", event.Kind)
		lines = payloadLines(event)
	}

	subject = severityPrefix(event.Severity) + subject
	body := strings.Join(lines, "\n")

	short := subject
	if len(lines) > 0 {
		short += ": " + lines[0]
	}

	return Message{
		Subject: subject,
		Body:    body,
		Short:   truncate(short, shortLimit),
	}
}

func severityPrefix(s Severity) string {
	switch s {
	case SeverityCritical:
		return "[CRITICAL] "
	case SeverityError:
		return "[HIGH] "
	default:
		return ""
	}
}

func payloadValue(event Event, key string) string {
	v, ok := event.Payload[key]
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%v", v)
}

func payloadLines(event Event) []string {
	keys := make([]string, 0, len(event.Payload))
	for k := range event.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys)+1)
	if event.ExecutionID != "" {
		lines = append(lines, fmt.Sprintf("Execution: %s", event.ExecutionID))
	}
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, event.Payload[k]))
	}
	return lines
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
