// Package model defines the shared data types passed between the fetcher, the
// coordinator and the sensor glue.
//
// Conventions:
//   - Upstream objects are kept as open Records; new upstream keys flow through untouched
//   - Numbers are json.Number (verbatim text), never converted to units
//   - A missing key and a present-but-empty value are different observable states
package model
