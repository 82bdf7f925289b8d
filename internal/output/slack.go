// Package output publishes finished reports to notification channels.
package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tracecollapse/internal/config"
	"tracecollapse/internal/report"
)

// slowestBy is the percentile used to rank rows in notifications.
const slowestBy = 99

// SlackSender handles the dispatch of report summaries to a Slack webhook.
type SlackSender struct {
	webhookURL string
	topRows    int
	client     *http.Client
}

// NewSlackSender initializes a SlackSender with a configured webhook URL and HTTP client.
func NewSlackSender(webhookURL string, topRows int) *SlackSender {
	if topRows <= 0 {
		topRows = 5
	}
	return &SlackSender{
		webhookURL: webhookURL,
		topRows:    topRows,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewSlackSenderFromConfig constructs a SlackSender using the provided configuration block.
func NewSlackSenderFromConfig(cfg config.SlackOutputConfig) *SlackSender {
	return NewSlackSender(cfg.WebhookURL, cfg.TopRows)
}

// SlackBlock represents a Slack message block
type SlackBlock struct {
	Type     string       `json:"type"`
	Text     *SlackText   `json:"text,omitempty"`
	Fields   []SlackField `json:"fields,omitempty"`
	Elements []SlackText  `json:"elements,omitempty"`
}

// SlackText represents text in Slack
type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackField represents a field in Slack
type SlackField struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SlackMessage represents a Slack message
type SlackMessage struct {
	Blocks []SlackBlock `json:"blocks"`
}

// Name identifies the sink in logs.
func (s *SlackSender) Name() string {
	return "slack"
}

// Publish sends r, labelled with the source it was built from.
func (s *SlackSender) Publish(ctx context.Context, sourceName string, r *report.Report) error {
	return s.send(ctx, s.buildReportMessage(sourceName, r))
}

// SendReport sends a report summary to Slack
func (s *SlackSender) SendReport(ctx context.Context, r *report.Report) error {
	return s.send(ctx, s.buildReportMessage("", r))
}

func (s *SlackSender) send(ctx context.Context, message SlackMessage) error {
	if s.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status: %d", resp.StatusCode)
	}

	return nil
}

// buildReportMessage constructs a block kit payload summarising a report.
func (s *SlackSender) buildReportMessage(sourceName string, r *report.Report) SlackMessage {
	emoji := "📊"
	if r.FailureCount() > 0 {
		emoji = "⚠️"
	}

	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: fmt.Sprintf("%s Trace report: %d traces", emoji, r.TotalTraces),
			},
		},
		{
			Type: "section",
			Fields: []SlackField{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Nodes:*\n%d", r.NodeCount),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Spans:*\n%d", r.TotalSpans),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Skipped nodes:*\n%d", r.FailureCount()),
				},
			},
		},
	}

	if len(r.RootURIs) > 0 {
		var b strings.Builder
		b.WriteString("*Top root URIs*")
		for i, u := range r.RootURIs {
			if i >= s.topRows {
				break
			}
			fmt.Fprintf(&b, "\n`%s` %d", u.URI, u.Count)
		}
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: b.String()},
		})
	}

	if slowest := r.Slowest(slowestBy, s.topRows); len(slowest) > 0 {
		var b strings.Builder
		fmt.Fprintf(&b, "*Slowest nodes by t%d*", slowestBy)
		for _, row := range slowest {
			fmt.Fprintf(&b, "\n>`%s` t%d %.2fms, mean %.2fms over %d spans",
				row.Name, slowestBy, row.Percentile(slowestBy), row.Summary.Mean, row.SpanCount)
		}
		blocks = append(blocks, SlackBlock{Type: "divider"})
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: b.String()},
		})
	}

	footer := fmt.Sprintf("Generated at: %s", r.GeneratedAt.Format(time.RFC3339))
	if sourceName != "" {
		footer += " | Source: " + sourceName
	}
	blocks = append(blocks, SlackBlock{
		Type:     "context",
		Elements: []SlackText{{Type: "mrkdwn", Text: footer}},
	})

	return SlackMessage{Blocks: blocks}
}
