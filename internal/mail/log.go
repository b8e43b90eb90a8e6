package mail

import (
	"context"
	"time"

	"resumatch.org/internal/obs"
)

// LogNotifier writes deliveries to the structured log instead of sending
// them. Used in development when no SMTP relay is configured.
type LogNotifier struct{}

// Deliver logs the message. It never fails.
func (LogNotifier) Deliver(ctx context.Context, template, to string, fields Fields) error {
	entry := map[string]any{
		"ts":       time.Now().UTC().Format(time.RFC3339Nano),
		"type":     "mail",
		"template": template,
		"to":       to,
	}
	for k, v := range fields {
		entry["field_"+k] = v
	}
	obs.LogRequest(entry)
	return nil
}
