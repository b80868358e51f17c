// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Model fields
	FieldModel      = "model"
	FieldRank       = "rank"
	FieldIterations = "iterations"
	FieldLoss       = "loss"

	// Path fields
	FieldPath      = "path"
	FieldInput     = "input"
	FieldOutputDir = "output_dir"
)
