// Package output renders the cache status for display or machine
// consumption.
//
// Three formats are supported:
//   - text: a table for the terminal (default)
//   - json: the full structured status
//   - markdown: a table suitable for a README or issue
//
// Use [NewStatus] to summarize a cache document, [GetWriter] to obtain a
// [Writer] for a format string, or [WriteStatus] to render to stdout or a
// file.
package output
