package notify

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"heimdall/internal/domain"
	"heimdall/internal/templatefmt"
)

// LogoContentID is the inline attachment id referenced by rich emails.
const LogoContentID = "heimdall_logo"

// Message is one rendered notification for one channel.
// Params: subject line, primary body, plain-text alternative, and source payload.
// Returns: sender input.
type Message struct {
	Channel      string
	Subject      string
	Body         string
	Text         string
	HTML         bool
	Notification domain.Notification
}

// Renderer turns a channel-independent notification into a channel message.
type Renderer interface {
	Render(notification domain.Notification) (Message, error)
}

// templateData is the model exposed to channel templates.
type templateData struct {
	Kind        string
	Batch       bool
	Heading     string
	Color       string
	Summary     string
	First       domain.Event
	Events      []domain.Event
	Groups      []domain.ServerGroup
	Counts      domain.EventCounts
	OtherActive []domain.AlertRecord
	Cooldown    string
	Timestamp   time.Time
	Logo        bool
}

// Subject builds the email subject line.
// Params: notification payload.
// Returns: subject prefixed with HEIMDALL.
func Subject(notification domain.Notification) string {
	counts := notification.Counts()
	first := notification.First()
	switch notification.Kind {
	case domain.NotificationTest:
		return "HEIMDALL TEST EMAIL"
	case domain.NotificationResolution:
		if notification.Batch {
			return fmt.Sprintf("HEIMDALL RESOLVED SUMMARY: %d %s resolved on %d %s",
				counts.Resolved, templatefmt.Plural(counts.Resolved, "issue", "issues"),
				counts.Servers, templatefmt.Plural(counts.Servers, "server", "servers"))
		}
		return fmt.Sprintf("HEIMDALL RESOLVED: %s - %s issue resolved", first.Record.Server, first.Record.Type)
	default:
		if notification.Batch {
			return fmt.Sprintf("HEIMDALL ALERT SUMMARY: %d new, %d recurring on %d %s",
				counts.New, counts.Recurring, counts.Servers, templatefmt.Plural(counts.Servers, "server", "servers"))
		}
		label := "NEW ALERT"
		if first.Kind == domain.KindRecurring {
			label = "RECURRING ALERT"
		}
		return fmt.Sprintf("HEIMDALL %s: %s - %s", label, first.Record.Server, first.Record.Message)
	}
}

// CooldownText renders the cooldown as words for notification footers.
// Params: cooldown duration.
// Returns: "1 hour", "2 hours", or "30 minutes" style text.
func CooldownText(cooldown time.Duration) string {
	if cooldown <= 0 {
		return "0 minutes"
	}
	if cooldown%time.Hour == 0 {
		hours := int(cooldown / time.Hour)
		return fmt.Sprintf("%d %s", hours, templatefmt.Plural(hours, "hour", "hours"))
	}
	minutes := int(cooldown.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%d %s", minutes, templatefmt.Plural(minutes, "minute", "minutes"))
}

func newTemplateData(notification domain.Notification) templateData {
	counts := notification.Counts()
	data := templateData{
		Kind:        string(notification.Kind),
		Batch:       notification.Batch,
		First:       notification.First(),
		Events:      notification.Events,
		Groups:      notification.GroupByServer(),
		Counts:      counts,
		OtherActive: notification.OtherActive,
		Cooldown:    CooldownText(notification.Cooldown),
		Timestamp:   notification.Timestamp,
	}
	switch notification.Kind {
	case domain.NotificationTest:
		data.Heading, data.Color = "HEIMDALL TEST", "#2563eb"
	case domain.NotificationResolution:
		data.Color = "#16a34a"
		data.Heading = "ALERT RESOLVED"
		if notification.Batch {
			data.Heading = "RESOLVED SUMMARY"
			data.Summary = fmt.Sprintf("%d %s resolved on %d %s", counts.Resolved,
				templatefmt.Plural(counts.Resolved, "issue", "issues"), counts.Servers,
				templatefmt.Plural(counts.Servers, "server", "servers"))
		}
	default:
		data.Color = "#dc2626"
		data.Heading = "NEW ALERT"
		if data.First.Kind == domain.KindRecurring {
			data.Heading, data.Color = "RECURRING ALERT", "#ea580c"
		}
		if notification.Batch {
			data.Heading, data.Color = "ALERT SUMMARY", "#dc2626"
			data.Summary = fmt.Sprintf("%d new, %d recurring on %d %s", counts.New, counts.Recurring,
				counts.Servers, templatefmt.Plural(counts.Servers, "server", "servers"))
		}
	}
	return data
}

func kindLabel(kind domain.LifecycleKind) string {
	switch kind {
	case domain.KindNew:
		return "NEW"
	case domain.KindRecurring:
		return "RECURRING"
	case domain.KindResolved:
		return "RESOLVED"
	default:
		return strings.ToUpper(string(kind))
	}
}

func kindIcon(kind domain.LifecycleKind) string {
	switch kind {
	case domain.KindNew:
		return "🆕"
	case domain.KindRecurring:
		return "🔁"
	case domain.KindResolved:
		return "✅"
	default:
		return "•"
	}
}

func renderFuncs() map[string]any {
	funcs := templatefmt.FuncMap()
	funcs["kindLabel"] = kindLabel
	funcs["kindIcon"] = kindIcon
	return funcs
}

const emailHTMLTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, Helvetica, sans-serif; color: #1f2937; max-width: 680px;">
{{- if .Logo }}
<div style="margin-bottom: 12px;"><img src="cid:heimdall_logo" alt="Heimdall" style="height: 48px;"></div>
{{- end }}
<h2 style="color: {{ .Color }}; margin: 0 0 12px 0;">{{ .Heading }}</h2>
{{- if eq .Kind "test" }}
<p>This is a test email from Heimdall Monitoring System. Email notifications are configured correctly.</p>
<p><b>Sent at:</b> {{ fmtTime .Timestamp }}</p>
{{- else if .Batch }}
<p><b>{{ .Summary }}</b></p>
{{- range .Groups }}
<h3 style="margin-bottom: 4px;">{{ .Server }} <span style="color: #6b7280;">({{ .Hostname }})</span></h3>
<ul>
{{- range .Events }}
<li><b>{{ kindLabel .Kind }}</b> {{ if .Detail }}{{ .Detail }}{{ else }}{{ .Record.Message }}{{ end }}{{ if eq .Kind "resolved" }} (active for {{ humanDuration .Duration }}){{ else }} (since {{ fmtTime .Record.FirstDetected }}){{ end }}</li>
{{- end }}
</ul>
{{- end }}
{{- else if eq .Kind "resolution" }}
<table cellpadding="4">
<tr><td><b>Server:</b></td><td>{{ .First.Record.Server }}</td></tr>
<tr><td><b>Hostname:</b></td><td>{{ .First.Record.Hostname }}</td></tr>
<tr><td><b>Metric:</b></td><td>{{ .First.Record.Type }}</td></tr>
{{- if .First.Detail }}
<tr><td><b>Current Value:</b></td><td>{{ .First.Detail }}</td></tr>
{{- end }}
<tr><td><b>Original Issue:</b></td><td>{{ .First.Record.Message }}</td></tr>
<tr><td><b>Duration:</b></td><td>{{ humanDuration .First.Duration }}</td></tr>
<tr><td><b>Resolved at:</b></td><td>{{ fmtTime .Timestamp }}</td></tr>
</table>
{{- else }}
<table cellpadding="4">
<tr><td><b>Server:</b></td><td>{{ .First.Record.Server }}</td></tr>
<tr><td><b>Hostname:</b></td><td>{{ .First.Record.Hostname }}</td></tr>
<tr><td><b>Issue:</b></td><td>{{ .First.Record.Message }}</td></tr>
<tr><td><b>First detected:</b></td><td>{{ fmtTime .First.Record.FirstDetected }}</td></tr>
<tr><td><b>Time:</b></td><td>{{ fmtTime .Timestamp }}</td></tr>
</table>
{{- end }}
{{- if .OtherActive }}
<h3>Other active alerts ({{ len .OtherActive }})</h3>
<ul>
{{- range .OtherActive }}
<li><b>{{ .Server }}</b>: {{ .Message }} (since {{ fmtTime .FirstDetected }})</li>
{{- end }}
</ul>
{{- end }}
{{- if eq .Kind "alert" }}
<p style="color: #6b7280;">You will not receive another notification about this issue for at least {{ .Cooldown }}.</p>
{{- end }}
<p style="color: #9ca3af; font-size: 12px;"><i>This is an automated message from Heimdall Monitoring System.</i></p>
</body>
</html>
`

const plainTextTemplate = `{{ .Heading }}
{{- if eq .Kind "test" }}
This is a test message from Heimdall Monitoring System.
Sent at: {{ fmtTime .Timestamp }}
{{- else if .Batch }}
{{ .Summary }}
{{- range .Groups }}

{{ .Server }} ({{ .Hostname }})
{{- range .Events }}
- {{ kindLabel .Kind }}: {{ if .Detail }}{{ .Detail }}{{ else }}{{ .Record.Message }}{{ end }}
{{- end }}
{{- end }}
{{- else if eq .Kind "resolution" }}
Server: {{ .First.Record.Server }}
Hostname: {{ .First.Record.Hostname }}
Metric: {{ .First.Record.Type }}
{{- if .First.Detail }}
Current Value: {{ .First.Detail }}
{{- end }}
Duration: {{ humanDuration .First.Duration }}
Resolved at: {{ fmtTime .Timestamp }}
{{- else }}
Server: {{ .First.Record.Server }}
Hostname: {{ .First.Record.Hostname }}
Issue: {{ .First.Record.Message }}
Time: {{ fmtTime .Timestamp }}
{{- end }}
{{- if .OtherActive }}

Other active alerts ({{ len .OtherActive }}):
{{- range .OtherActive }}
- {{ .Server }}: {{ .Message }}
{{- end }}
{{- end }}
`

const telegramTemplate = `{{- if eq .Kind "test" -}}
<b>🔔 HEIMDALL TEST MESSAGE</b>

Telegram notifications are working.
<b>Sent at:</b> {{ fmtTime .Timestamp }}
{{- else if .Batch -}}
<b>{{ if eq .Kind "resolution" }}✅{{ else }}🚨{{ end }} {{ .Heading }}</b>
{{ .Summary }}
{{- range .Groups }}

<b>{{ html .Server }}</b> ({{ html .Hostname }})
{{- range .Events }}
{{ kindIcon .Kind }} {{ if .Detail }}{{ html .Detail }}{{ else }}{{ html .Record.Message }}{{ end }}{{ if eq .Kind "resolved" }} <i>({{ humanDuration .Duration }})</i>{{ end }}
{{- end }}
{{- end }}
{{- else if eq .Kind "resolution" -}}
<b>✅ ALERT RESOLVED</b>

<b>Server:</b> {{ html .First.Record.Server }}
<b>Hostname:</b> <code>{{ html .First.Record.Hostname }}</code>
<b>Metric:</b> {{ html .First.Record.Type }}
{{- if .First.Detail }}
<b>Current Value:</b> {{ html .First.Detail }}
{{- end }}
<b>Duration:</b> {{ humanDuration .First.Duration }}
<b>Resolved at:</b> {{ fmtTime .Timestamp }}

<i>The issue has been resolved. System is back to normal.</i>
{{- else -}}
<b>{{ if eq .First.Kind "recurring" }}⚠️{{ else }}🚨{{ end }} {{ .Heading }}</b>

<b>Server:</b> {{ html .First.Record.Server }}
<b>Hostname:</b> <code>{{ html .First.Record.Hostname }}</code>
<b>Issue:</b> {{ html .First.Record.Message }}
<b>Time:</b> {{ fmtTime .Timestamp }}
{{- end }}
{{- if .OtherActive }}

<b>Other active alerts ({{ len .OtherActive }}):</b>
{{- range .OtherActive }}
• <b>{{ html .Server }}</b>: {{ html .Message }}
{{- end }}
{{- end }}
{{- if ne .Kind "test" }}

<i>This is an automated alert from Heimdall Monitoring System.</i>
{{- end }}`

// EmailRenderer renders HTML mail with a plain-text alternative.
type EmailRenderer struct {
	Logo  bool
	html  *htmltemplate.Template
	plain *template.Template
}

// NewEmailRenderer compiles the built-in email templates.
// Params: logo toggles the inline logo reference.
// Returns: renderer or template parse error.
func NewEmailRenderer(logo bool) (*EmailRenderer, error) {
	html, err := htmltemplate.New("email.html").Funcs(renderFuncs()).Option("missingkey=error").Parse(emailHTMLTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email template: %w", err)
	}
	plain, err := template.New("email.text").Funcs(renderFuncs()).Option("missingkey=error").Parse(plainTextTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse email text template: %w", err)
	}
	return &EmailRenderer{Logo: logo, html: html, plain: plain}, nil
}

// Render builds subject, HTML body, and plain alternative.
func (r *EmailRenderer) Render(notification domain.Notification) (Message, error) {
	data := newTemplateData(notification)
	data.Logo = r.Logo

	var html, plain strings.Builder
	if err := r.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render email html: %w", err)
	}
	if err := r.plain.Execute(&plain, data); err != nil {
		return Message{}, fmt.Errorf("render email text: %w", err)
	}
	return Message{
		Subject:      Subject(notification),
		Body:         html.String(),
		Text:         plain.String(),
		HTML:         true,
		Notification: notification,
	}, nil
}

// TelegramRenderer renders Telegram HTML-parse-mode text.
type TelegramRenderer struct {
	body *template.Template
}

// NewTelegramRenderer compiles the built-in Telegram template.
func NewTelegramRenderer() (*TelegramRenderer, error) {
	body, err := template.New("telegram").Funcs(renderFuncs()).Option("missingkey=error").Parse(telegramTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse telegram template: %w", err)
	}
	return &TelegramRenderer{body: body}, nil
}

// Render builds the Telegram message body.
func (r *TelegramRenderer) Render(notification domain.Notification) (Message, error) {
	var body strings.Builder
	if err := r.body.Execute(&body, newTemplateData(notification)); err != nil {
		return Message{}, fmt.Errorf("render telegram message: %w", err)
	}
	return Message{
		Subject:      Subject(notification),
		Body:         body.String(),
		HTML:         true,
		Notification: notification,
	}, nil
}
