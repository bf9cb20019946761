package router

import (
	"fmt"
	"html"
	"strings"
)

// Formatter turns raw captured output into a safely escaped, optionally
// annotated representation. Annotation rules vary by tool category; agent
// output gets markdown-flavored rendering.
type Formatter struct{}

// NewFormatter creates a formatter.
func NewFormatter() *Formatter {
	return &Formatter{}
}

// Format escapes raw output and applies per-category highlighting.
func (f *Formatter) Format(raw string, category Category) string {
	switch category {
	case CategoryAI:
		return f.formatMarkdown(raw)
	case CategoryDevelopment:
		return f.formatDiffAware(raw)
	case CategoryDevOps, CategoryCloud:
		return f.formatStatusAware(raw)
	default:
		return wrapPlain(html.EscapeString(raw))
	}
}

// formatMarkdown renders agent output: fenced code blocks become <pre>
// sections, everything else is escaped line by line.
func (f *Formatter) formatMarkdown(raw string) string {
	var b strings.Builder
	inFence := false

	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inFence {
				b.WriteString("</code></pre>\n")
			} else {
				b.WriteString("<pre><code>")
			}
			inFence = !inFence
			continue
		}
		escaped := html.EscapeString(line)
		if inFence {
			b.WriteString(escaped)
			b.WriteString("\n")
			continue
		}
		if strings.HasPrefix(line, "# ") {
			b.WriteString(fmt.Sprintf(`<strong>%s</strong>`+"\n", escaped))
			continue
		}
		b.WriteString(escaped)
		b.WriteString("\n")
	}
	if inFence {
		b.WriteString("</code></pre>\n")
	}
	return wrapWith("output-agent", b.String())
}

// formatDiffAware highlights added/removed lines the way version-control and
// build tools print them.
func (f *Formatter) formatDiffAware(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		escaped := html.EscapeString(line)
		switch {
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			b.WriteString(`<span class="line-added">` + escaped + "</span>\n")
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			b.WriteString(`<span class="line-removed">` + escaped + "</span>\n")
		default:
			b.WriteString(escaped + "\n")
		}
	}
	return wrapWith("output-dev", b.String())
}

// formatStatusAware marks lines that report state in orchestration and cloud
// client output.
func (f *Formatter) formatStatusAware(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		escaped := html.EscapeString(line)
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
			b.WriteString(`<span class="line-error">` + escaped + "</span>\n")
		case strings.Contains(lower, "running") || strings.Contains(lower, "ready") || strings.Contains(lower, "healthy"):
			b.WriteString(`<span class="line-ok">` + escaped + "</span>\n")
		default:
			b.WriteString(escaped + "\n")
		}
	}
	return wrapWith("output-ops", b.String())
}

func wrapPlain(escaped string) string {
	return wrapWith("output-plain", escaped)
}

func wrapWith(class, body string) string {
	return `<div class="` + class + `">` + body + `</div>`
}
