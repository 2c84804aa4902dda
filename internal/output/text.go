package output

import (
	"fmt"
	"io"
	"strings"
)

// TextWriter outputs a human-readable report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *Report) error {
	ew := &errWriter{w: w}

	ew.printf("sheltercache %s", report.Command)
	if report.Bucket != "" {
		ew.printf(" — bucket %s", report.Bucket)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	section(ew, "Cached", report.Cached)
	section(ew, "Kept", report.Kept)
	section(ew, "Deleted", report.Deleted)

	if len(report.Buckets) > 0 {
		ew.printf("Buckets (%d):\n", len(report.Buckets))
		for _, b := range report.Buckets {
			marker := " "
			if b.Current {
				marker = "*"
			}
			ew.printf("  %s %s (%d entries)\n", marker, b.Name, b.Count)
			for _, e := range b.Entries {
				ew.printf("      %s\n", e)
			}
		}
	}

	if f := report.Fetch; f != nil {
		ew.printf("URL:     %s\n", f.URL)
		ew.printf("Source:  %s\n", f.Source)
		ew.printf("Status:  %d\n", f.Status)
		if f.ContentType != "" {
			ew.printf("Type:    %s\n", f.ContentType)
		}
		ew.printf("Bytes:   %d\n", f.Bytes)
	}

	if len(report.Errors) > 0 {
		ew.printf("Errors (%d):\n", len(report.Errors))
		for _, e := range report.Errors {
			for i, line := range wrapText(e, 70) {
				if i == 0 {
					ew.printf("  [!] %s\n", line)
					continue
				}
				ew.printf("      %s\n", line)
			}
		}
	}

	return ew.err
}

func section(ew *errWriter, title string, items []string) {
	if len(items) == 0 {
		return
	}
	ew.printf("%s (%d):\n", title, len(items))
	for _, it := range items {
		ew.printf("  %s\n", it)
	}
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	words := strings.Fields(text)
	var current strings.Builder
	for _, word := range words {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
