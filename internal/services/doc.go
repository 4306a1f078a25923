// Package services holds the error taxonomy and context helpers shared by
// every pipeline stage: sentinel errors for validation, provenance, and I/O
// failures, the mapping from an error to a park destination, and context
// keys for correlating log lines with a task and stage.
package services
