// Package fetcher implements the Snapshot Fetcher.
//
// The Snapshot Fetcher:
//   - Issues one GET per upstream endpoint (userinfo, devices) concurrently
//   - Merges the bodies into a single model.Snapshot
//   - Fails atomically: any transport, status or parse failure yields a FetchError
//     and no snapshot
package fetcher
