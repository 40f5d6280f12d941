// Package llm is the single entry point skills use to call language models.
//
// A Client routes each call by functional role (for example
// "cognitive_analysis") to a configured provider and model, fills in
// generation defaults and retries transient provider failures with
// exponential backoff. Providers live in internal/platform and adapt a
// vendor SDK to the Provider interface.
package llm
