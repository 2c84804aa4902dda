// Package controller implements the cache lifecycle controller for the offline
// shelter map.
//
// The host drives three handlers:
//
//   - [Controller.OnSetup] opens the bucket named "<app>-<version>" and
//     populates it with every manifest URL, all or nothing. A population failure
//     is logged and swallowed unless Config.StrictSetup is set.
//   - [Controller.OnActivate] deletes every bucket except the current one,
//     concurrently, and waits for all deletions to settle.
//   - [Controller.OnIntercept] answers a request: bypass prefixes go straight to
//     the network; otherwise a bucket hit is served without touching the
//     network, a miss is fetched (and not stored), and any failure yields the
//     fallback document.
//
// A Controller holds no mutable state after construction; handlers may run
// concurrently.
package controller
