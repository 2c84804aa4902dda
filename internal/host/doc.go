// Package host drives a cache controller through its lifecycle and serves
// intercepted requests over HTTP.
//
// A Host moves through uninstalled, installing, installed, activating and
// active. Only an active host routes requests through the controller; before
// that, requests go straight to the network as they would for a page with no
// active worker.
package host
