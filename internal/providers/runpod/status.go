package runpod

import (
	"bytes"
	"encoding/json"
	"strings"

	"skinstudio/internal/domain"
)

// PollResult is the provider's job state mapped onto the internal vocabulary.
type PollResult struct {
	State          domain.JobState
	Progress       *int
	ProviderStatus string
	Result         Result
	Error          string
	// Transient marks a poll that failed before the provider answered. Such
	// results must not be written to the ledger.
	Transient bool
}

// Result is the decoded output of a completed job.
type Result struct {
	URL       string
	Ambiguous bool
}

// resultKeys are checked in order when the output is an object.
var resultKeys = []string{"image_url", "enhanced_image", "enhanced_image_url", "output_image", "result", "url"}

// MapState translates a provider status into an internal state and, when the
// status implies one, a progress percentage. Unknown statuses stay processing
// without a progress claim.
func MapState(providerState string) (domain.JobState, *int) {
	normalized := strings.ToUpper(strings.TrimSpace(providerState))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "QUEUED", "IN_QUEUE":
		return domain.JobStateProcessing, intPtr(10)
	case "RUNNING", "IN_PROGRESS":
		return domain.JobStateProcessing, intPtr(50)
	case "DONE", "COMPLETED":
		return domain.JobStateCompleted, intPtr(100)
	case "FAILED", "CANCELLED", "TIMED_OUT":
		return domain.JobStateFailed, intPtr(0)
	default:
		return domain.JobStateProcessing, nil
	}
}

func interpret(resp statusResponse) PollResult {
	state, progress := MapState(resp.Status)
	res := PollResult{
		State:          state,
		Progress:       progress,
		ProviderStatus: resp.Status,
	}
	switch state {
	case domain.JobStateCompleted:
		res.Result = extractResult(resp.Output)
	case domain.JobStateFailed:
		res.Error = errorText(resp.Error)
		if res.Error == "" {
			res.Error = "enhancement failed with provider status " + resp.Status
		}
	}
	return res
}

func transientResult(err error) PollResult {
	return PollResult{
		State:     domain.JobStateProcessing,
		Error:     err.Error(),
		Transient: true,
	}
}

// extractResult decodes a string, an object with a known key, or a list of
// either. The first recognized locator wins.
func extractResult(raw json.RawMessage) Result {
	if url, ok := locatorFrom(raw, true); ok {
		return Result{URL: url}
	}
	return Result{Ambiguous: true}
}

func locatorFrom(raw json.RawMessage, allowList bool) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", false
		}
		for _, key := range resultKeys {
			if v, ok := obj[key]; ok {
				if url, ok := locatorFrom(v, false); ok {
					return url, true
				}
			}
		}
	case '[':
		if !allowList {
			return "", false
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return "", false
		}
		for _, item := range items {
			if url, ok := locatorFrom(item, false); ok {
				return url, true
			}
		}
	}
	return "", false
}

func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func intPtr(v int) *int { return &v }
