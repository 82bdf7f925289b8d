package output

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracecollapse/internal/config"
	"tracecollapse/internal/report"
	"tracecollapse/internal/stats"
)

func row(name string, p99, mean float64, spans int) report.Row {
	return report.Row{
		Name:      name,
		SpanCount: spans,
		Summary: stats.Summary{
			Description: stats.Description{Count: spans, Mean: mean},
			Percentiles: []stats.Quantile{{P: 99, Value: p99}},
		},
	}
}

func testReport() *report.Report {
	return &report.Report{
		TotalTraces: 12,
		TotalSpans:  40,
		NodeCount:   3,
		RootURIs:    []report.URICount{{URI: "/checkout", Count: 8}, {URI: "/cart", Count: 4}},
		Rows: []report.Row{
			row(":web", 120, 80, 12),
			row(":web:db", 300, 90, 20),
			row(":web:cache", 2, 1, 8),
		},
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublish(t *testing.T) {
	var received SlackMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSlackSender(server.URL, 2)
	require.NoError(t, sender.Publish(context.Background(), "dir:/traces", testReport()))

	require.Len(t, received.Blocks, 6)
	assert.Equal(t, "header", received.Blocks[0].Type)
	assert.Contains(t, received.Blocks[0].Text.Text, "12 traces")
	assert.Equal(t, "*Nodes:*\n3", received.Blocks[1].Fields[0].Text)
	assert.Contains(t, received.Blocks[2].Text.Text, "`/checkout` 8")

	slowest := received.Blocks[4].Text.Text
	assert.Contains(t, slowest, ":web:db")
	assert.Contains(t, slowest, ":web`")
	assert.NotContains(t, slowest, ":web:cache")

	assert.Equal(t, "context", received.Blocks[5].Type)
	assert.Contains(t, received.Blocks[5].Elements[0].Text, "Source: dir:/traces")
}

func TestSendReportMarksFailures(t *testing.T) {
	r := testReport()
	r.Failures = []report.Failure{{Name: ":cron", Reason: "no durations"}}

	msg := NewSlackSender("http://unused", 0).buildReportMessage("", r)
	assert.Contains(t, msg.Blocks[0].Text.Text, "⚠️")
	assert.Equal(t, "*Skipped nodes:*\n1", msg.Blocks[1].Fields[2].Text)
	assert.NotContains(t, msg.Blocks[len(msg.Blocks)-1].Elements[0].Text, "Source")
}

func TestSendReportErrors(t *testing.T) {
	assert.Error(t, NewSlackSender("", 5).SendReport(context.Background(), testReport()))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackSender(server.URL, 5).SendReport(context.Background(), testReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestNewSlackSenderFromConfig(t *testing.T) {
	sender := NewSlackSenderFromConfig(config.SlackOutputConfig{WebhookURL: "http://hooks", TopRows: 3})
	assert.Equal(t, "http://hooks", sender.webhookURL)
	assert.Equal(t, 3, sender.topRows)
	assert.Equal(t, "slack", sender.Name())
}
