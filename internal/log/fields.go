// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID   = "session_id"
	FieldRequestID   = "request_id"
	FieldMediaFileID = "media_file_id"
	FieldTraceID     = "trace_id"
	FieldSpanID      = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldHandle    = "handle"
	FieldPID       = "pid"

	// Media / stream fields
	FieldCodec      = "codec"
	FieldResolution = "resolution"
	FieldEncoder    = "encoder"
	FieldVariant    = "variant"
	FieldMode       = "mode"
	FieldContainer  = "container"
	FieldPosition   = "position"

	// Path fields
	FieldPath    = "path"
	FieldSegment = "segment"
)
