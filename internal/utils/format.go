package utils

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// ConsoleFormatter renders entries as "[LOG] | message | {key: value, ...}".
type ConsoleFormatter struct {
	// FieldOrder lists keys printed first, in this order. Remaining keys are sorted.
	FieldOrder []string
}

func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	b.WriteString(levelTag(entry.Level))
	b.WriteString(" | ")
	b.WriteString(entry.Message)

	if len(entry.Data) > 0 {
		b.WriteString(" ")
		b.WriteString(yellow("| " + f.renderFields(entry.Data)))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *ConsoleFormatter) renderFields(data logrus.Fields) string {
	order := FieldOrder
	if f.FieldOrder != nil {
		order = f.FieldOrder
	}

	keys := make([]string, 0, len(data))
	done := make(map[string]bool, len(data))
	for _, k := range order {
		if _, ok := data[k]; ok {
			keys = append(keys, k)
			done[k] = true
		}
	}
	var rest []string
	for k := range data {
		if !done[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	keys = append(keys, rest...)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, renderValue(data[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// FieldOrder is the default key order, matching the history file layout.
var FieldOrder = []string{"datetime", "username", "old_user_id", "new_user_id"}

func renderValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case *string:
		if val == nil {
			return "null"
		}
		return fmt.Sprintf("%q", *val)
	case string:
		return fmt.Sprintf("%q", val)
	case error:
		return fmt.Sprintf("%q", val.Error())
	default:
		return fmt.Sprintf("%v", val)
	}
}

func levelTag(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return faint("[DBG]")
	case logrus.WarnLevel:
		return yellow("[WRN]")
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return red("[ERR]")
	default:
		return cyan("[LOG]")
	}
}
