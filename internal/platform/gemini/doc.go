// Package gemini adapts Google's Gemini API to the llm.Provider interface.
//
// Messages are translated to genai contents: system messages become the
// system instruction, assistant messages use the "model" role and images
// are sent as inline data parts. JSON mode sets the response MIME type to
// application/json.
//
// Response problems are classified for the llm client's retry loop:
//   - empty or malformed responses wrap llm.ErrInvalidResponse
//   - safety blocks wrap llm.ErrContentBlocked
//   - 4xx API errors other than 429 wrap llm.ErrInvalidRequest
//
// Everything else is returned as-is and treated as transient.
package gemini
