package notifier

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// TeamsNotifier posts run summaries to a Microsoft Teams webhook as an
// Adaptive Card.
type TeamsNotifier struct {
	hook *webhook
}

// NewTeamsNotifier creates a Teams notifier. A nil client gets a 30s timeout.
func NewTeamsNotifier(cfg WebhookConfig, client *http.Client) (*TeamsNotifier, error) {
	hook, err := newWebhook(cfg, client)
	if err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}
	return &TeamsNotifier{hook: hook}, nil
}

// Name returns "teams".
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// Send posts the summary.
func (t *TeamsNotifier) Send(ctx context.Context, s *Summary) error {
	return t.hook.post(ctx, "teams", buildTeamsPayload(s))
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

// Adaptive Card element types
type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

func buildTeamsPayload(s *Summary) teamsMessage {
	body := []any{
		container{
			Type:  "Container",
			Style: teamsStatusStyle(s.Status),
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   s.Headline(),
					Size:   "Large",
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
	}

	facts := []fact{
		{Title: "Status", Value: string(s.Status)},
		{Title: "Reports", Value: fmt.Sprintf("%d of %d", s.Documents, s.Requested)},
	}
	if s.Status != StatusFailed {
		facts = append(facts,
			fact{Title: "Size", Value: humanize.Bytes(uint64(s.TotalBytes))},
			fact{Title: "Duration", Value: s.Duration.Round(time.Second).String()},
		)
	}
	facts = append(facts, fact{Title: "Finished", Value: s.FinishedAt.UTC().Format("2006-01-02 15:04:05 MST")})
	if s.BatchID != "" {
		facts = append(facts, fact{Title: "Batch", Value: s.BatchID})
	}
	body = append(body, factSet{Type: "FactSet", Facts: facts})

	if s.Error != "" {
		body = append(body, textBlock{
			Type:  "TextBlock",
			Text:  fmt.Sprintf("**Error:** %s", s.Error),
			Wrap:  true,
			Color: "attention",
		})
	}
	if lines := failureLines(s, maxListedFailures); len(lines) > 0 {
		body = append(body, textBlock{
			Type: "TextBlock",
			Text: "**Failures:**\n\n- " + strings.Join(lines, "\n- "),
			Wrap: true,
		})
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsStatusStyle returns an Adaptive Card container style for the status.
func teamsStatusStyle(status Status) string {
	switch status {
	case StatusSucceeded:
		return "good"
	case StatusPartial:
		return "warning"
	case StatusFailed:
		return "attention"
	default:
		return "default"
	}
}
