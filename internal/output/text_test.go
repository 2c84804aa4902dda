package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestTextWriter_Setup(t *testing.T) {
	report := &Report{
		Command: "install",
		Bucket:  "shelter-map-offline-v1",
		Cached:  []string{"http://localhost:8000/", "http://localhost:8000/index.html"},
	}
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"install", "shelter-map-offline-v1", "Cached (2):", "http://localhost:8000/index.html"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTextWriter_BucketsMarksCurrent(t *testing.T) {
	report := &Report{
		Command: "buckets list",
		Buckets: []Bucket{
			{Name: "app-v1", Count: 3},
			{Name: "app-v2", Current: true, Count: 11},
		},
	}
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !strings.Contains(buf.String(), "* app-v2 (11 entries)") {
		t.Errorf("current bucket not marked:\n%s", buf.String())
	}
	if !strings.Contains(buf.String(), "  app-v1 (3 entries)") {
		t.Errorf("stale bucket missing:\n%s", buf.String())
	}
}

func TestTextWriter_FetchAndErrors(t *testing.T) {
	report := &Report{
		Command: "fetch",
		Fetch:   &Fetch{URL: "http://localhost:8000/x.js", Source: "fallback", Status: 503, ContentType: "text/html", Bytes: 42},
		Errors:  []string{strings.Repeat("word ", 30)},
	}
	var buf bytes.Buffer
	if err := (&TextWriter{}).Write(&buf, report); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Source:  fallback") || !strings.Contains(out, "Status:  503") {
		t.Errorf("fetch details missing:\n%s", out)
	}
	if !strings.Contains(out, "[!] word") {
		t.Errorf("errors missing:\n%s", out)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("aaa bbb ccc ddd", 7)
	if len(lines) != 2 || lines[0] != "aaa bbb" || lines[1] != "ccc ddd" {
		t.Errorf("wrapText = %q", lines)
	}
}
