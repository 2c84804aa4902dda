// Package bucket provides named cache buckets that map a request identity to a
// stored response.
//
// A [Store] owns the set of buckets. Three backends are available: an
// in-memory store for tests and ephemeral hosts, a disk store that keeps one
// directory per bucket with one JSON file per entry (named by the SHA-256 of
// the request key), and a SQLite store that keeps every bucket in a single
// database file.
//
// Every backend is safe for concurrent use. [Bucket.PutAll] is all-or-nothing:
// when it returns an error none of the entries passed to that call remain.
package bucket
