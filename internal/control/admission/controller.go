package admission

import (
	"context"

	"github.com/streamarr/streamarr-server-sub001/internal/domain/session/model"
)

// DefaultRetryAfterSeconds is advertised to clients rejected for capacity.
const DefaultRetryAfterSeconds = 5

// Decision represents the outcome of an admission check.
type Decision struct {
	Allow bool
	// Slots is the number of transcode units granted. For ladders it is the
	// number of variants that may be launched.
	Slots             int
	Truncated         bool
	Problem           *Problem
	RetryAfterSeconds *int
}

// Request describes the workload a new session wants to start.
type Request struct {
	Mode model.TranscodeMode
	// Variants is the size of the requested ladder, zero for single rendition.
	Variants int
}

// RuntimeState is the capacity already consumed, computed by the caller from
// a consistent registry snapshot.
type RuntimeState struct {
	SlotsInUse int
}

// CapacityController abstracts the admission logic.
type CapacityController interface {
	Check(ctx context.Context, req Request, state RuntimeState) Decision
}

// Controller enforces a global ceiling on concurrent transcode units.
type Controller struct {
	maxTranscodes int
}

var _ CapacityController = (*Controller)(nil)

// NewController creates a controller. maxTranscodes must be >= 1; config
// validation enforces that.
func NewController(maxTranscodes int) *Controller {
	return &Controller{maxTranscodes: maxTranscodes}
}

// Limit returns the configured ceiling.
func (c *Controller) Limit() int { return c.maxTranscodes }

// Units is the capacity a session consumes: nothing for remux, one per
// launched variant otherwise (at least one). A truncated ladder counts what
// is actually running.
func Units(s *model.StreamSession) int {
	if !s.Decision.Mode.RequiresTranscode() {
		return 0
	}
	return max(1, len(s.Variants))
}

// InUse sums Units over sessions.
func InUse(sessions []*model.StreamSession) int {
	n := 0
	for _, s := range sessions {
		n += Units(s)
	}
	return n
}

// Check evaluates whether a session may start.
//
// Rules (Strict Order):
// 1. Invalid state -> Reject (Fail Closed)
// 2. Remux -> Allow, no slots
// 3. No slots left -> Reject
// 4. Ladder -> Allow, truncated to remaining slots
// 5. Single rendition -> Allow, one slot
func (c *Controller) Check(_ context.Context, req Request, state RuntimeState) Decision {
	if state.SlotsInUse < 0 || req.Variants < 0 {
		return Decision{Problem: NewStateUnknown()}
	}

	if !req.Mode.RequiresTranscode() {
		return Decision{Allow: true}
	}

	remaining := c.maxTranscodes - state.SlotsInUse
	if remaining <= 0 {
		retry := DefaultRetryAfterSeconds
		return Decision{
			Problem:           NewTranscodesFull(state.SlotsInUse, c.maxTranscodes),
			RetryAfterSeconds: &retry,
		}
	}

	if req.Variants > 0 {
		slots := min(req.Variants, remaining)
		return Decision{Allow: true, Slots: slots, Truncated: slots < req.Variants}
	}
	return Decision{Allow: true, Slots: 1}
}
