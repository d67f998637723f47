package browser

import "fmt"

// Outcome is the result of one consent step
type Outcome int

const (
	// NotApplicable means the control or API was not on the page
	NotApplicable Outcome = iota
	// Performed means the step ran and was accepted
	Performed
	// Failed means the control was there but acting on it failed
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Performed:
		return "performed"
	case NotApplicable:
		return "not applicable"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// StepResult records what happened to one consent step
type StepResult struct {
	Step    string
	Outcome Outcome
	Err     error // set only when Outcome is Failed
}

// ConsentReport is the outcome of the whole consent workflow
type ConsentReport struct {
	Cookies StepResult
	Terms   StepResult
}

// Steps returns the step results in the order they ran
func (r ConsentReport) Steps() []StepResult {
	return []StepResult{r.Cookies, r.Terms}
}

func performed(step string) StepResult {
	return StepResult{Step: step, Outcome: Performed}
}

func notApplicable(step string) StepResult {
	return StepResult{Step: step, Outcome: NotApplicable}
}

func failed(step string, err error) StepResult {
	return StepResult{Step: step, Outcome: Failed, Err: err}
}
