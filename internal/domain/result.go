package domain

import "encoding/json"

// Result is the stable result envelope produced by every Run (spec.md §6):
//
//	{
//	  "runtime": "<timestamp>",
//	  "success": bool | "skipped",
//	  "results": { "devices"?: {...}, ... },
//	  "error"?: "<message>",
//	  "Attempt <n>"?: <prior-attempt result>
//	}
type Result struct {
	Runtime  string
	Success  SuccessState
	Results  map[string]any
	Error    string
	Attempts map[string]any // "Attempt <n>" -> prior attempt's envelope
}

// NewFailure builds a single-field failure envelope, the shape used when a
// ResolutionError or EvaluatorError aborts a Run/node outright.
func NewFailure(err error) Result {
	return Result{Success: Failure, Error: err.Error()}
}

// NewSkipped builds the envelope for a skipped job.
func NewSkipped() Result {
	return Result{Success: Skipped}
}

// MarshalJSON flattens Attempts into top-level "Attempt n" keys alongside
// the envelope's own fields, matching the shape the original implementation
// produces.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 4+len(r.Attempts))
	if r.Runtime != "" {
		out["runtime"] = r.Runtime
	}
	out["success"] = r.Success
	if r.Results != nil {
		out["results"] = r.Results
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	for k, v := range r.Attempts {
		out[k] = v
	}
	return json.Marshal(out)
}

// AsMap renders the envelope as a plain map for embedding into a parent
// Payload (payload[job.name] = job_result).
func (r Result) AsMap() map[string]any {
	out := map[string]any{"success": r.Success}
	if r.Runtime != "" {
		out["runtime"] = r.Runtime
	}
	if r.Results != nil {
		out["results"] = r.Results
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	for k, v := range r.Attempts {
		out[k] = v
	}
	return out
}
