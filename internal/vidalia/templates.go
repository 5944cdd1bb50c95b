package vidalia

import (
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseTemplates() *template.Template {
	return template.Must(template.New("").Funcs(templateFuncs()).ParseFS(templateFS, "templates/*.html"))
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"nl2br":    nl2br,
		"datetime": formatDatetime,
		"severity": severityBadge,
		"status":   statusBadge,
		"truncate": truncateText,
	}
}

// nl2br renders user text with line breaks preserved. The input is
// escaped before the tags go in.
func nl2br(text string) template.HTML {
	if text == "" {
		return ""
	}
	escaped := template.HTMLEscapeString(text)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>\n"))
}

func formatDatetime(v any) string {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			return ""
		}
		t = parsed
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 02, 2006 15:04")
}

var severityClasses = map[string]string{
	"high":   "danger",
	"medium": "warning",
	"low":    "info",
}

func severityBadge(severity string) template.HTML {
	s := strings.ToLower(severity)
	if s == "" {
		s = "unknown"
	}
	class, ok := severityClasses[s]
	if !ok {
		class = "secondary"
	}
	return badge(class, s)
}

var statusClasses = map[string]string{
	"closed":      "success",
	"open":        "primary",
	"in_progress": "warning",
	"healthy":     "success",
	"warning":     "warning",
	"error":       "danger",
}

func statusBadge(status string) template.HTML {
	s := strings.ToLower(status)
	if s == "" {
		s = "unknown"
	}
	s = strings.ReplaceAll(s, " ", "_")
	class, ok := statusClasses[s]
	if !ok {
		class = "secondary"
	}
	return badge(class, strings.ReplaceAll(s, "_", " "))
}

func badge(class, label string) template.HTML {
	return template.HTML(`<span class="badge badge-` + class + `">` + template.HTMLEscapeString(label) + `</span>`)
}

func truncateText(text string, length int) string {
	const suffix = "..."
	if text == "" {
		return ""
	}
	if len(text) <= length {
		return text
	}
	if length <= len(suffix) {
		return suffix
	}
	return text[:length-len(suffix)] + suffix
}
