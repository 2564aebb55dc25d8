package modal

import (
	"errors"
	"fmt"
)

var ErrInvalidDecision = errors.New("invalid decision result")

type RiskLevel string

const (
	RiskHigh   RiskLevel = "HIGH"
	RiskMedium RiskLevel = "MEDIUM"
	RiskLow    RiskLevel = "LOW"

	// RiskNone only appears on rule results.
	RiskNone RiskLevel = "NONE"
)

func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskInit    TaskStatus = "INIT"
	TaskRunning TaskStatus = "RUNNING"
	TaskDone    TaskStatus = "DONE"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskInit, TaskRunning, TaskDone:
		return true
	}
	return false
}

type DecisionResult string

const (
	DecisionPass   DecisionResult = "PASS"
	DecisionReject DecisionResult = "REJECT"
	DecisionReturn DecisionResult = "RETURN"
)

// ParseDecisionResult accepts the exact upper-case names only.
func ParseDecisionResult(s string) (DecisionResult, error) {
	switch r := DecisionResult(s); r {
	case DecisionPass, DecisionReject, DecisionReturn:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
}

type RuleResult string

const (
	RulePass RuleResult = "PASS"
	RuleFail RuleResult = "FAIL"
)

type MaterialStatus string

const (
	MaterialPending MaterialStatus = "PENDING"
	MaterialPass    MaterialStatus = "PASS"
	MaterialFail    MaterialStatus = "FAIL"
	MaterialWarning MaterialStatus = "WARNING"
)
