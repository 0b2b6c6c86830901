package notify

import (
	"context"
	"fmt"
	"log"
)

// RunReport summarizes a completed sync or recluster run for operators.
type RunReport struct {
	Repo string
	Kind string // "sync" or "recluster"

	// Sync fields.
	Mode        string
	Processed   int
	Embedded    int
	Reused      int
	EmbedFailed int

	// Recluster fields.
	Product         string
	ClustersCreated int
	IssuesMapped    int
}

// Notifier sends run reports to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, report RunReport) error
}

// MultiNotifier sends reports to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify sends the report to all configured notifiers.
// It logs errors from individual notifiers but continues to the rest.
// Returns the last error encountered, if any.
func (m *MultiNotifier) Notify(ctx context.Context, report RunReport) error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			log.Printf("notifier error: %v", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier based on the configured webhooks. Returns
// nil when no webhook is configured; callers treat a nil Notifier as "don't
// notify".
func NewNotifier(slackURL, discordURL string) (Notifier, error) {
	var notifiers []Notifier
	if slackURL != "" {
		notifiers = append(notifiers, NewSlackNotifier(slackURL))
	}
	if discordURL != "" {
		notifiers = append(notifiers, NewDiscordNotifier(discordURL))
	}

	switch len(notifiers) {
	case 0:
		return nil, nil
	case 1:
		return notifiers[0], nil
	default:
		return NewMultiNotifier(notifiers...), nil
	}
}

// checkResponse turns a non-2xx webhook response into an error.
func checkResponse(service string, statusCode int) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return fmt.Errorf("%s webhook returned status %d", service, statusCode)
}
