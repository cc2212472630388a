package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// maxListedFailures caps the failures quoted in one message.
const maxListedFailures = 10

// SlackNotifier posts run summaries to a Slack incoming webhook.
type SlackNotifier struct {
	hook *webhook
}

// NewSlackNotifier creates a Slack notifier. A nil client gets a 30s timeout.
func NewSlackNotifier(cfg WebhookConfig, client *http.Client) (*SlackNotifier, error) {
	hook, err := newWebhook(cfg, client)
	if err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}
	return &SlackNotifier{hook: hook}, nil
}

// Name returns "slack".
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send posts the summary.
func (s *SlackNotifier) Send(ctx context.Context, sum *Summary) error {
	return s.hook.post(ctx, "slack", buildSlackPayload(sum))
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func mrkdwn(format string, args ...any) slackText {
	return slackText{Type: "mrkdwn", Text: fmt.Sprintf(format, args...)}
}

func buildSlackPayload(s *Summary) slackMessage {
	headline := fmt.Sprintf("%s %s", statusEmoji(s.Status), s.Headline())
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: headline, Emoji: true},
		},
	}

	if s.Status == StatusFailed {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%s", s.Error)},
		})
	} else {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Fields: []slackText{
				mrkdwn("*Reports:*\n%d of %d", s.Documents, s.Requested),
				mrkdwn("*Failed:*\n%d", len(s.Failures)),
				mrkdwn("*Size:*\n%s", humanize.Bytes(uint64(s.TotalBytes))),
				mrkdwn("*Duration:*\n%s", s.Duration.Round(time.Second)),
			},
		})
	}

	if lines := failureLines(s, maxListedFailures); len(lines) > 0 {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: "*Failures:*\n```" + strings.Join(lines, "\n") + "```"},
		})
	}

	footer := []slackText{mrkdwn("Finished %s", s.FinishedAt.UTC().Format("2006-01-02 15:04:05 MST"))}
	if s.BatchID != "" {
		footer = append(footer, mrkdwn("Batch `%s`", s.BatchID))
	}
	blocks = append(blocks, slackBlock{Type: "context", Elements: footer})

	return slackMessage{Text: s.Headline(), Blocks: blocks}
}

// statusEmoji returns an emoji for the run status.
func statusEmoji(status Status) string {
	switch status {
	case StatusSucceeded:
		return "\U0001F7E2" // green circle
	case StatusPartial:
		return "\U0001F7E1" // yellow circle
	case StatusCanceled:
		return "\u26AA" // white circle
	default:
		return "\U0001F534" // red circle
	}
}
