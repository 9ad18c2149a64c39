// Package action defines the action wire schema shared by the executor, the
// recorder and the text-generation side, and executes action sequences
// against a live page.
package action

// Action kinds accepted on the wire.
const (
	Click    = "click"
	Fill     = "fill"
	Press    = "press"
	Scroll   = "scroll"
	Navigate = "navigate"
)

// Report statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// SkipDataSufficient marks a scroll step that was skipped because the
// already-visible inventory satisfies the remaining actions.
const SkipDataSufficient = "data_sufficient"

// Spec is one action to perform. Which fields matter depends on Action:
// click/fill need Target (fill also Value), press takes Key and an optional
// Target, scroll takes Direction and Amount, navigate takes Target as a URL.
type Spec struct {
	Action    string `json:"action"`
	Target    string `json:"target,omitempty"`
	Value     string `json:"value,omitempty"`
	Key       string `json:"key,omitempty"`
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`
}

// StepResult reports one processed Spec. Steps are emitted in input order and
// a failed resolution still produces a step with Success=false.
type StepResult struct {
	Action    string `json:"action"`
	Target    string `json:"target"`
	Value     string `json:"value,omitempty"`
	Key       string `json:"key,omitempty"`
	Direction string `json:"direction,omitempty"`
	Amount    int    `json:"amount,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Skipped   string `json:"skipped,omitempty"`
}

// Report aggregates one execution run. Status is "success" iff every step
// succeeded; a failed step never aborts the run.
type Report struct {
	Status   string       `json:"status"`
	Steps    []StepResult `json:"steps"`
	Logs     []string     `json:"logs"`
	FinalURL string       `json:"final_url,omitempty"`
}

func statusFor(steps []StepResult) string {
	for _, s := range steps {
		if !s.Success {
			return StatusError
		}
	}
	return StatusSuccess
}
