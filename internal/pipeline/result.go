package pipeline

import "time"

// Error kinds recorded in SaveResult.Errors.
const (
	KindNoData     = "NO_DATA"
	KindFetchError = "FETCH_ERROR"
	KindSaveError  = "SAVE_ERROR"
)

// SaveError is one reportable problem encountered by a chain.
type SaveError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SaveResult is the per-chain aggregate outcome. It is created at chain start,
// mutated by the chain while it runs, and treated as immutable once Complete
// has been called.
type SaveResult struct {
	Success    bool        `json:"success"`
	Inserted   int         `json:"inserted_count"`
	Modified   int         `json:"modified_count"`
	ErrorCount int         `json:"error_count"`
	Errors     []SaveError `json:"errors"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
}

// NewSaveResult creates a SaveResult with StartTime set to now.
func NewSaveResult() *SaveResult {
	return &SaveResult{StartTime: time.Now()}
}

// AddError records one problem and bumps the error count.
func (r *SaveResult) AddError(kind, message string) {
	r.Errors = append(r.Errors, SaveError{Kind: kind, Message: message})
	r.ErrorCount++
}

// Complete sets EndTime exactly once; later calls are no-ops.
func (r *SaveResult) Complete() {
	if r.EndTime.IsZero() {
		r.EndTime = time.Now()
	}
}

// Completed reports whether Complete has been called.
func (r *SaveResult) Completed() bool {
	return !r.EndTime.IsZero()
}

// Duration is EndTime - StartTime for a completed result, or the elapsed time
// so far for a running one. Never negative.
func (r *SaveResult) Duration() time.Duration {
	end := r.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	if end.Before(r.StartTime) {
		return 0
	}
	return end.Sub(r.StartTime)
}
