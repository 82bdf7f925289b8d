package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Renderer writes a report in a specific format.
type Renderer interface {
	Render(w io.Writer, r *Report) error
	ContentType() string
}

// Format names a supported output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// NewRenderer returns the renderer for the named format.
func NewRenderer(format string) (Renderer, error) {
	switch Format(strings.ToLower(format)) {
	case FormatText, "":
		return &TextRenderer{NameWidth: defaultNameWidth}, nil
	case FormatJSON:
		return &JSONRenderer{Indent: "  "}, nil
	case FormatMarkdown, "md":
		return &MarkdownRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// JSONRenderer encodes the report as JSON.
type JSONRenderer struct {
	Indent string
}

// Render writes the report as a single JSON document.
func (j *JSONRenderer) Render(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", j.Indent)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func (j *JSONRenderer) ContentType() string {
	return "application/json"
}

// indentedLabel indents a node label by depth and truncates it to width runes.
func indentedLabel(row Row, width int) string {
	label := strings.Repeat("  ", row.Depth) + row.Label
	runes := []rune(label)
	if width > 0 && len(runes) > width {
		runes = runes[:width]
	}
	return string(runes)
}

func percentileHeader(p float64) string {
	return fmt.Sprintf("t%g", p)
}
