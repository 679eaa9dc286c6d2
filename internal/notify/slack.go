package notify

import (
	"context"

	"github.com/slack-go/slack"
)

// Slack posts to an incoming webhook.
type Slack struct {
	WebhookURL string
}

func (s Slack) Notify(ctx context.Context, e Event) error {
	return slack.PostWebhookContext(ctx, s.WebhookURL, &slack.WebhookMessage{Text: e.Text()})
}
