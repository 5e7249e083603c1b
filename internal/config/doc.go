// Package config defines the typed, format-agnostic model of a pipeline
// document and the Loader seam that produces it. The engine consumes this
// model as an in-memory tree; it never parses documents itself.
package config
