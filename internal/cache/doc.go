// Package cache keeps completion responses on disk so that re-reviewing an
// unchanged document against an unchanged checklist costs no API calls.
//
// Entries are keyed by RequestKey, a SHA-256 over the provider, model,
// prompts, image bytes and sampling settings. Documents are redacted before
// any request is built, so cached payloads never hold detected secrets.
package cache
