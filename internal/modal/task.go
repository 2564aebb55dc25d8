package modal

import "time"

// AuditTask is a pending unit of review work. ID is stable for the task's lifetime.
type AuditTask struct {
	ID             int64      `json:"auditTaskId" yaml:"auditTaskId"`
	BizType        string     `json:"bizType" yaml:"bizType"`
	BizID          int64      `json:"bizId" yaml:"bizId"`
	CommunityName  string     `json:"communityName" yaml:"communityName"`
	ProjectName    string     `json:"projectName" yaml:"projectName"`
	Amount         float64    `json:"amount" yaml:"amount"`
	RiskLevel      RiskLevel  `json:"riskLevel" yaml:"riskLevel"`
	Status         TaskStatus `json:"status" yaml:"status"`
	SubmissionDate string     `json:"submissionDate" yaml:"submissionDate"`
}

// Draft is the unsaved decision for one task.
type Draft struct {
	Result  DecisionResult `json:"result"`
	Comment string         `json:"comment"`
}

// DefaultDraft is what an untouched decision form submits.
func DefaultDraft() Draft {
	return Draft{Result: DecisionPass}
}

type TaskDecision struct {
	DecisionID string         `json:"decisionId"`
	TaskID     int64          `json:"taskId"`
	Result     DecisionResult `json:"result"`
	Comment    string         `json:"comment"`
	Decider    string         `json:"decider"`
	DecidedAt  time.Time      `json:"decidedAt"`
}

// Submission is what gets handed to a decision sink: the decision plus the
// task it closes, so a sink can open a review record if none exists yet.
type Submission struct {
	Task     AuditTask    `json:"task"`
	Decision TaskDecision `json:"decision"`
}

type AuditEvent struct {
	At      time.Time      `json:"at"`
	Kind    string         `json:"kind"`
	TaskID  int64          `json:"taskId,omitempty"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type ChatRole string

const (
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role ChatRole `json:"role"`
	Text string   `json:"text"`
}
