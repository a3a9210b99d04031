// Package logging provides the structured logger used across docreview.
//
// Every logger routes records through a SanitizingHandler so API keys and
// other credentials never reach the log output.
package logging
