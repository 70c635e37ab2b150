package enforcement

import (
	"fmt"

	"securitybot/internal/settings"
)

type Decision int

const (
	Allow Decision = iota
	Block
	// FailOpen is an Allow that was reached because evaluation failed.
	FailOpen
)

func (d Decision) Allowed() bool {
	return d != Block
}

func (d Decision) String() string {
	switch d {
	case Block:
		return "block"
	case FailOpen:
		return "fail_open"
	default:
		return "allow"
	}
}

// Violation is the verdict of a policy check that found a problem with a
// message.
type Violation struct {
	Policy     settings.Key
	Rule       string
	Reason     string
	Punishment settings.Punishment
	// URL is the offending link for link violations.
	URL string
}

type EvaluationError struct {
	Policy settings.Key
	Err    error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s evaluation failed: %v", e.Policy, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Resolve turns an evaluation outcome into a decision. Any error wins over
// a violation and yields FailOpen.
func Resolve(violation *Violation, err error) Decision {
	if err != nil {
		return FailOpen
	}
	if violation == nil {
		return Allow
	}
	return Block
}

// Evaluate runs check and recovers panics into an EvaluationError.
func Evaluate(policy settings.Key, check func() (*Violation, error)) (violation *Violation, err error) {
	defer func() {
		if r := recover(); r != nil {
			violation = nil
			err = &EvaluationError{Policy: policy, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	violation, err = check()
	if err != nil {
		return nil, &EvaluationError{Policy: policy, Err: err}
	}
	return violation, nil
}
