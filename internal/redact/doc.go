// Package redact removes access tokens from URLs and free text before they are
// written to diagnostic logs.
//
// Map tile and style requests carry the API token in the query string
// (access_token=pk.…), so every URL the controller logs goes through [URL].
package redact
