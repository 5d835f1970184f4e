package ir

// Version constants for persisted artifacts.
const (
	// SchemaFormatVersion is the JSON layout version of a persisted Schema.
	SchemaFormatVersion = "1"

	// Version is the docsql release version.
	Version = "0.1.0"
)
