// Package generation provides interfaces and implementations for interacting
// with external AI services for content generation. It abstracts the details
// of the LLM API integration (Gemini), allowing the application to generate
// story text and page illustrations without coupling to specific external
// services.
package generation
