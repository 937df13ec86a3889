package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
)

// JSONFormatter formats entries as single-line JSON objects.
type JSONFormatter struct {
	// TimestampFormat overrides the default RFC3339 timestamp format.
	TimestampFormat string
}

// Format formats the entry as JSON.
func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	format := time.RFC3339
	if f.TimestampFormat != "" {
		format = f.TimestampFormat
	}

	data := make(map[string]interface{}, len(entry.Fields)+3)
	data["timestamp"] = entry.Timestamp.Format(format)
	data["level"] = entry.Level.String()
	data["message"] = entry.Message
	for k, v := range entry.Fields {
		switch k {
		case "timestamp", "level", "message":
			// Reserved keys win over fields.
		default:
			data[k] = v
		}
	}

	out, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// TextFormatter formats entries as human-readable lines.
type TextFormatter struct {
	TimestampFormat string
	DisableColors   bool
}

// NewTextFormatter creates a TextFormatter with sensible defaults.
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000",
	}
}

var levelColors = map[Level]*color.Color{
	DebugLevel: color.New(color.FgCyan),
	InfoLevel:  color.New(color.FgGreen),
	WarnLevel:  color.New(color.FgYellow),
	ErrorLevel: color.New(color.FgRed),
	FatalLevel: color.New(color.FgRed, color.Bold),
}

// Format formats the entry as text.
func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	format := f.TimestampFormat
	if format == "" {
		format = "2006-01-02T15:04:05.000"
	}

	level := entry.Level.String()
	if !f.DisableColors {
		if c, ok := levelColors[entry.Level]; ok {
			level = c.Sprint(level)
		}
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %-5s %s", entry.Timestamp.Format(format), level, entry.Message)

	// Stable field ordering, component first.
	if component, ok := entry.Fields["component"]; ok {
		fmt.Fprintf(&buf, " component=%v", component)
	}
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		if k != "component" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
