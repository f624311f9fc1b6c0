// Package runledger persists assembly run and per-point progress in
// SQLite so interrupted or failed runs can be inspected afterwards.
package runledger
