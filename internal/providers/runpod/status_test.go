package runpod

import (
	"encoding/json"
	"testing"

	"skinstudio/internal/domain"
)

func TestMapState(t *testing.T) {
	cases := []struct {
		in       string
		state    domain.JobState
		progress int
		claim    bool
	}{
		{"IN_QUEUE", domain.JobStateProcessing, 10, true},
		{"queued", domain.JobStateProcessing, 10, true},
		{"IN_PROGRESS", domain.JobStateProcessing, 50, true},
		{"running", domain.JobStateProcessing, 50, true},
		{"COMPLETED", domain.JobStateCompleted, 100, true},
		{"done", domain.JobStateCompleted, 100, true},
		{"FAILED", domain.JobStateFailed, 0, true},
		{"cancelled", domain.JobStateFailed, 0, true},
		{"TIMED_OUT", domain.JobStateFailed, 0, true},
		{"timed-out", domain.JobStateFailed, 0, true},
		{"WARMING_UP", domain.JobStateProcessing, 0, false},
		{"", domain.JobStateProcessing, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			state, progress := MapState(tc.in)
			if state != tc.state {
				t.Fatalf("state = %q, want %q", state, tc.state)
			}
			if !tc.claim {
				if progress != nil {
					t.Fatalf("progress = %d, want no claim", *progress)
				}
				return
			}
			if progress == nil || *progress != tc.progress {
				t.Fatalf("progress = %v, want %d", progress, tc.progress)
			}
		})
	}
}

func TestMapStateIsPure(t *testing.T) {
	a, pa := MapState("IN_PROGRESS")
	*pa = 99
	b, pb := MapState("IN_PROGRESS")
	if a != b || *pb != 50 {
		t.Fatalf("MapState must not share state between calls")
	}
}

func TestExtractResult(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		url       string
		ambiguous bool
	}{
		{"string", `"https://x/a.png"`, "https://x/a.png", false},
		{"image_url", `{"image_url":"https://x/b.png"}`, "https://x/b.png", false},
		{"enhanced_image", `{"enhanced_image":"https://x/c.png"}`, "https://x/c.png", false},
		{"key order", `{"url":"https://x/late.png","image_url":"https://x/first.png"}`, "https://x/first.png", false},
		{"list of strings", `["https://x/d.png","https://x/e.png"]`, "https://x/d.png", false},
		{"list of objects", `[{"other":1},{"output_image":"https://x/f.png"}]`, "https://x/f.png", false},
		{"nested result object", `{"result":{"url":"https://x/g.png"}}`, "https://x/g.png", false},
		{"unknown keys", `{"width":512}`, "", true},
		{"empty string", `""`, "", true},
		{"null", `null`, "", true},
		{"missing", ``, "", true},
		{"nested lists", `[["https://x/h.png"]]`, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := extractResult(json.RawMessage(tc.raw))
			if got.URL != tc.url || got.Ambiguous != tc.ambiguous {
				t.Fatalf("extractResult(%s) = %+v", tc.raw, got)
			}
		})
	}
}
