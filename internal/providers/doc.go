// Package providers implements the Completer interface for each supported LLM
// provider.
//
// Supported providers: Anthropic (Claude), OpenAI (GPT), Google (Gemini), and
// Ollama / LMStudio for local models. Requests may carry page images, which
// each provider encodes in its own wire format.
//
// All providers share a common retry helper with exponential back-off for
// rate limits and 5xx responses. Once retries are spent, or for any other
// non-200 status, the failure surfaces as an [APIError] that keeps the status
// code and response body verbatim; callers use those to decide whether a
// failure means the model's context window was exceeded.
//
// Every response reports a normalized [FinishReason] so that truncated or
// filtered output can be told apart from a clean stop.
//
// Use [New] to obtain a Completer by provider name and model string.
package providers
