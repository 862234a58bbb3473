package templatefmt

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"
)

// TimeLayout is the timestamp format used in every notification.
const TimeLayout = "2006-01-02 15:04:05"

// FuncMap returns shared notification template helpers.
// Params: none.
// Returns: helper map shared by text and HTML templates.
func FuncMap() map[string]any {
	return map[string]any{
		"fmtDuration":   FormatDuration,
		"humanDuration": HumanDuration,
		"fmtTime":       FormatTime,
		"plural":        Plural,
		"upper":         strings.ToUpper,
		"title":         Title,
	}
}

// ParseNotificationTemplate parses one plain-text template with shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseNotificationTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// ParseHTMLTemplate parses one HTML template with contextual escaping and shared helpers.
// Params: template name and body.
// Returns: compiled template or parse error.
func ParseHTMLTemplate(name, body string) (*htmltemplate.Template, error) {
	return htmltemplate.New(name).Funcs(FuncMap()).Option("missingkey=error").Parse(body)
}

// FormatDuration renders duration in compact form with one decimal.
// Params: template value expected as time.Duration or *time.Duration.
// Returns: formatted duration string such as "1.5h".
func FormatDuration(value any) string {
	duration, ok := asDuration(value)
	if !ok {
		return "0.0s"
	}
	seconds := duration.Seconds()
	switch {
	case seconds >= 3600:
		return fmt.Sprintf("%.1fh", seconds/3600)
	case seconds >= 60:
		return fmt.Sprintf("%.1fm", seconds/60)
	default:
		return fmt.Sprintf("%.1fs", seconds)
	}
}

// HumanDuration renders the long form used in resolution notices.
// Params: template value expected as time.Duration or *time.Duration.
// Returns: "D days, H hours, M minutes" when at least one day, else "H hours, M minutes".
func HumanDuration(value any) string {
	duration, ok := asDuration(value)
	if !ok {
		return "0 hours, 0 minutes"
	}
	total := int64(duration / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60
	if days > 0 {
		return fmt.Sprintf("%d days, %d hours, %d minutes", days, hours, minutes)
	}
	return fmt.Sprintf("%d hours, %d minutes", hours, minutes)
}

// FormatTime renders a timestamp with TimeLayout.
// Params: time.Time or *time.Time.
// Returns: formatted timestamp, empty for nil or zero values.
func FormatTime(value any) string {
	var ts time.Time
	switch typed := value.(type) {
	case time.Time:
		ts = typed
	case *time.Time:
		if typed == nil {
			return ""
		}
		ts = *typed
	default:
		return ""
	}
	if ts.IsZero() {
		return ""
	}
	return ts.Format(TimeLayout)
}

// Plural picks singular or plural word form by count.
func Plural(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// Title upper-cases the first letter of s.
func Title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func asDuration(value any) (time.Duration, bool) {
	var duration time.Duration
	switch typed := value.(type) {
	case time.Duration:
		duration = typed
	case *time.Duration:
		if typed == nil {
			return 0, false
		}
		duration = *typed
	default:
		return 0, false
	}
	if duration < 0 {
		duration = -duration
	}
	return duration, true
}
