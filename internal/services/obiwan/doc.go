// Package obiwan adapts the external cross-section tool behind a
// capability interface. Command lines are preserved exactly; the one
// tool quirk (stray outputs in the working directory) is corrected here
// so callers never see it.
package obiwan
