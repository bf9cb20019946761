package router

import (
	"strings"
	"testing"
)

func TestFormatter_Escaping(t *testing.T) {
	f := NewFormatter()

	out := f.Format("<script>alert(1)</script>", CategoryUnknown)
	if strings.Contains(out, "<script>") {
		t.Error("expected raw markup to be escaped")
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected escaped markup, got %q", out)
	}
	if !strings.Contains(out, `class="output-plain"`) {
		t.Errorf("expected plain wrapper, got %q", out)
	}
}

func TestFormatter_Markdown(t *testing.T) {
	f := NewFormatter()

	raw := "# Summary\nplain text\n```\ncode here\n```\n"
	out := f.Format(raw, CategoryAI)

	if !strings.Contains(out, "<strong># Summary</strong>") {
		t.Errorf("expected heading markup, got %q", out)
	}
	if !strings.Contains(out, "<pre><code>code here\n</code></pre>") {
		t.Errorf("expected fenced block markup, got %q", out)
	}
	if !strings.Contains(out, `class="output-agent"`) {
		t.Errorf("expected agent wrapper, got %q", out)
	}
}

func TestFormatter_UnterminatedFence(t *testing.T) {
	f := NewFormatter()

	out := f.Format("```\ndangling", CategoryAI)
	if strings.Count(out, "<pre><code>") != strings.Count(out, "</code></pre>") {
		t.Errorf("expected balanced fence markup, got %q", out)
	}
}

func TestFormatter_DiffAware(t *testing.T) {
	f := NewFormatter()

	raw := "+++ b/file\n+added line\n-removed line\ncontext\n"
	out := f.Format(raw, CategoryDevelopment)

	if !strings.Contains(out, `<span class="line-added">+added line</span>`) {
		t.Errorf("expected added-line markup, got %q", out)
	}
	if !strings.Contains(out, `<span class="line-removed">-removed line</span>`) {
		t.Errorf("expected removed-line markup, got %q", out)
	}
	// File headers are not diff lines.
	if strings.Contains(out, `<span class="line-added">+++`) {
		t.Errorf("expected header left unmarked, got %q", out)
	}
}

func TestFormatter_StatusAware(t *testing.T) {
	f := NewFormatter()

	raw := "pod-a Running\npod-b Error: crash loop\npod-c Pending\n"
	out := f.Format(raw, CategoryDevOps)

	if !strings.Contains(out, `<span class="line-ok">pod-a Running</span>`) {
		t.Errorf("expected ok markup, got %q", out)
	}
	if !strings.Contains(out, `<span class="line-error">pod-b Error: crash loop</span>`) {
		t.Errorf("expected error markup, got %q", out)
	}
	if strings.Contains(out, `>pod-c Pending</span>`) {
		t.Errorf("expected neutral line unmarked, got %q", out)
	}
}
