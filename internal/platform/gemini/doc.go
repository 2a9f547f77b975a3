// Package gemini implements the generation interfaces using Google's Gemini
// API for story text and a deterministic local renderer for page
// illustrations.
package gemini
