// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Session attributes
	SessionIDKey     = "session.id"
	SessionMediaKey  = "session.media_file_id"
	SessionSeekKey   = "session.seek_position"
	SessionLadderKey = "session.variants"

	// Decision attributes
	DecisionModeKey      = "decision.mode"
	DecisionCodecKey     = "decision.video_codec"
	DecisionContainerKey = "decision.container"
	DecisionReasonKey    = "decision.reason"

	// Transcoding attributes
	TranscodeInputCodecKey = "transcode.input_codec"
	TranscodeEncoderKey    = "transcode.encoder"
	TranscodeVariantKey    = "transcode.variant"
	TranscodeBitrateKey    = "transcode.bitrate"
	TranscodeHeightKey     = "transcode.height"
	TranscodeHardwareKey   = "transcode.hardware"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SessionAttributes identifies a session on a span.
func SessionAttributes(sessionID, mediaFileID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if sessionID != "" {
		attrs = append(attrs, attribute.String(SessionIDKey, sessionID))
	}
	if mediaFileID != "" {
		attrs = append(attrs, attribute.String(SessionMediaKey, mediaFileID))
	}
	return attrs
}

// DecisionAttributes records the delivery strategy chosen for a session.
func DecisionAttributes(d model.TranscodeDecision, reason string, variants int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(DecisionModeKey, string(d.Mode)),
		attribute.String(DecisionCodecKey, d.VideoCodecFamily),
		attribute.String(DecisionContainerKey, string(d.Container)),
		attribute.String(DecisionReasonKey, reason),
		attribute.Int(SessionLadderKey, variants),
	}
}

// TranscodeAttributes describes one launched variant.
func TranscodeAttributes(inputCodec, encoder, variant string, bitrate int64, height int, hardware bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(TranscodeInputCodecKey, inputCodec),
		attribute.String(TranscodeEncoderKey, encoder),
		attribute.String(TranscodeVariantKey, variant),
		attribute.Int64(TranscodeBitrateKey, bitrate),
		attribute.Int(TranscodeHeightKey, height),
		attribute.Bool(TranscodeHardwareKey, hardware),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
