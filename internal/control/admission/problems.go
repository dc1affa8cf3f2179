package admission

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/streamarr/streamarr-server-sub001/internal/control/http/problem"
	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// Admission Control Problem Codes (Stable)
const (
	CodeTranscodesFull = "ADMISSION_TRANSCODES_FULL"
	CodeStateUnknown   = "ADMISSION_STATE_UNKNOWN"
)

// Problem is a lightweight wrapper around RFC7807 data for internal passing.
// The controller returns it as an error value that the transport layer
// converts with WriteProblem.
type Problem struct {
	Status int
	Type   string
	Title  string
	Code   string
	Detail string
	Extra  map[string]any
}

func (p *Problem) Error() string {
	return fmt.Sprintf("[%s] %s: %s", p.Code, p.Title, p.Detail)
}

// Unwrap exposes capacity rejections as model.ErrCapacityExceeded.
func (p *Problem) Unwrap() error {
	if p.Code == CodeTranscodesFull {
		return model.ErrCapacityExceeded
	}
	return nil
}

// NewTranscodesFull returns a 503 problem when the transcode limit is reached.
func NewTranscodesFull(current, limit int) *Problem {
	return &Problem{
		Status: http.StatusServiceUnavailable,
		Type:   "admission/transcodes-full",
		Title:  "Transcode capacity exceeded",
		Code:   CodeTranscodesFull,
		Detail: "Maximum number of concurrent transcodes reached.",
		Extra: map[string]any{
			"current": current,
			"limit":   limit,
		},
	}
}

// NewStateUnknown returns a 503 problem when the capacity accounting is inconsistent.
func NewStateUnknown() *Problem {
	return &Problem{
		Status: http.StatusServiceUnavailable,
		Type:   "admission/state-unknown",
		Title:  "Admission state unknown",
		Code:   CodeStateUnknown,
		Detail: "Capacity accounting is inconsistent; failing closed.",
	}
}

// WriteProblem converts an admission.Problem to an HTTP response. A positive
// retryAfter is sent as Retry-After.
func WriteProblem(w http.ResponseWriter, r *http.Request, p *Problem, retryAfter int) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	problem.Write(w, r, p.Status, p.Type, p.Title, p.Code, p.Detail, p.Extra)
}
