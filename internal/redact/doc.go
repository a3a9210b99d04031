// Package redact removes secrets from document text before it is sent to a
// completion provider or written to a log.
//
// Detection is regex based and covers common credential shapes: generic API
// keys and tokens, AWS keys, JWTs, bearer tokens, private key headers and
// provider-specific keys (Anthropic, OpenAI, Google, GitHub, Slack).
//
// Files whose path matches a configured glob are withheld entirely and
// replaced with a placeholder instead of being scanned.
package redact
