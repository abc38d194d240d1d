package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// JSONFormatter renders an Entry as a single-line JSON object.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(entry *Entry) ([]byte, error) {
	out := make(map[string]interface{}, len(entry.Fields)+4)
	for k, v := range entry.Fields {
		out[k] = v
	}
	out["level"] = entry.Level.String()
	out["msg"] = entry.Message
	out["ts"] = entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	if entry.Caller != "" {
		out["caller"] = entry.Caller
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders an Entry as a human-readable single line.
type TextFormatter struct {
	// DisableColor turns off ANSI coloring of the level token.
	DisableColor bool
}

func (f *TextFormatter) Format(entry *Entry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(entry.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	buf.WriteByte(' ')
	buf.WriteString(f.levelToken(entry.Level))
	buf.WriteByte(' ')
	buf.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, " %s=%v", k, entry.Fields[k])
		}
	}
	if entry.Caller != "" {
		buf.WriteString(" caller=")
		buf.WriteString(entry.Caller)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (f *TextFormatter) levelToken(level Level) string {
	token := strings.ToUpper(level.String())
	if f.DisableColor {
		return token
	}
	var color string
	switch level {
	case DebugLevel:
		color = "\x1b[90m"
	case InfoLevel:
		color = "\x1b[36m"
	case WarnLevel:
		color = "\x1b[33m"
	case ErrorLevel, FatalLevel:
		color = "\x1b[31m"
	default:
		return token
	}
	return color + token + "\x1b[0m"
}
