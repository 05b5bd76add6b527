// Package notify sends ops-facing alerts to Slack when the governance
// pipeline observes a condition an on-call engineer should know about:
// a circuit breaker tripping open, or a budget commit clamped past the
// overrun slack. It never carries request or response content — only
// categorical, already-safe-to-log fields.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Sink posts operational alerts to a single Slack channel. A Sink with no
// bot token configured is a silent no-op, matching the teacher's pattern of
// treating Slack as an optional integration.
type Sink struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// New creates a Sink. If botToken is empty, the sink logs at debug level
// instead of posting.
func New(botToken, channel string, logger *slog.Logger) *Sink {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Sink{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the sink will actually post to Slack.
func (s *Sink) IsEnabled() bool {
	return s.client != nil && s.channel != ""
}

// BreakerOpen alerts that the circuit breaker for model has tripped open.
func (s *Sink) BreakerOpen(ctx context.Context, model string) {
	s.post(ctx, fmt.Sprintf(":red_circle: circuit breaker open for model `%s` — inference calls are failing fast", model))
}

// BudgetOverrun alerts that a commit for userID would have pushed the day's
// spend past the daily budget plus the overrun slack, so the recorded spend
// was clamped at that limit.
func (s *Sink) BudgetOverrun(ctx context.Context, userID string) {
	s.post(ctx, fmt.Sprintf(":warning: budget overrun for user `%s` — daily spend exceeded the slack allowance and was clamped", userID))
}

func (s *Sink) post(ctx context.Context, text string) {
	if !s.IsEnabled() {
		s.logger.Debug("notify sink disabled, skipping alert", "text", text)
		return
	}
	if _, _, err := s.client.PostMessageContext(ctx, s.channel, goslack.MsgOptionText(text, false)); err != nil {
		s.logger.Error("posting ops alert to slack failed", "error", err)
	}
}
