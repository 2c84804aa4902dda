// Package output renders CLI reports as human-readable text or JSON.
//
// Use [GetWriter] to obtain a [Writer] for a format name ("text", "json"), or
// [WriteReport] to render a [Report] straight to a file or stdout.
package output
