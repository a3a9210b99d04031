// Package output formats review reports for display or machine consumption.
//
// Four formats are supported:
//   - text     human-readable terminal output (default)
//   - json     the full structured report
//   - markdown collapsible sections per evaluation, for tickets and wikis
//   - sarif    SARIF v2.1.0, one rule per checklist item
//
// Use [GetWriter] to obtain a [Writer] for a format string, or [WriteReport]
// to write straight to a file or stdout.
package output
