// Package history extracts per-case irradiation histories from the info
// tables the external tool renders for concentration files.
package history
