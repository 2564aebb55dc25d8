package modal

// AuditDetail is the full review payload for one task, loaded on demand.
type AuditDetail struct {
	TaskID            int64               `json:"taskId" yaml:"taskId"`
	BaseInfo          BaseInfo            `json:"baseInfo" yaml:"baseInfo"`
	Extracts          []ExtractBlock      `json:"extracts" yaml:"extracts"`
	Materials         []MaterialFile      `json:"materials,omitempty" yaml:"materials"`
	ApportionmentList []ApportionmentItem `json:"apportionmentList,omitempty" yaml:"apportionmentList"`
	Rules             []RuleExec          `json:"rules" yaml:"rules"`
	AISummary         string              `json:"aiSummary" yaml:"aiSummary"`
}

type BaseInfo struct {
	CommunityName string  `json:"communityName" yaml:"communityName"`
	ProjectName   string  `json:"projectName" yaml:"projectName"`
	Amount        float64 `json:"amount" yaml:"amount"`
	Balance       float64 `json:"balance" yaml:"balance"`
	ApplyType     string  `json:"applyType" yaml:"applyType"`
	EmergencyFlag string  `json:"emergencyFlag" yaml:"emergencyFlag"`
	RepairCompany string  `json:"repairCompany" yaml:"repairCompany"`
}

// ExtractBlock holds fields pulled out of one uploaded document
// (decision, contract, budget, invoice or refund).
type ExtractBlock struct {
	Type   string         `json:"type" yaml:"type"`
	Fields map[string]any `json:"json" yaml:"fields"`
}

type MaterialFile struct {
	ID         string         `json:"id" yaml:"id"`
	Name       string         `json:"name" yaml:"name"`
	Size       string         `json:"size" yaml:"size"`
	Node       string         `json:"node" yaml:"node"`
	IsRequired bool           `json:"isRequired" yaml:"isRequired"`
	Status     MaterialStatus `json:"status" yaml:"status"`
	AIAnalysis string         `json:"aiAnalysis,omitempty" yaml:"aiAnalysis"`
}

type ApportionmentItem struct {
	RoomID    string  `json:"roomId" yaml:"roomId"`
	RoomNo    string  `json:"roomNo" yaml:"roomNo"`
	OwnerName string  `json:"ownerName" yaml:"ownerName"`
	Area      float64 `json:"area" yaml:"area"`
	Amount    float64 `json:"amount" yaml:"amount"`
}

type RuleExec struct {
	RuleCode  string     `json:"ruleCode" yaml:"ruleCode"`
	RuleDesc  string     `json:"ruleDesc" yaml:"ruleDesc"`
	Result    RuleResult `json:"result" yaml:"result"`
	RiskLevel RiskLevel  `json:"riskLevel" yaml:"riskLevel"`
	Message   string     `json:"message" yaml:"message"`
}

// FailedRules returns the rules whose result is FAIL, in order.
func (d *AuditDetail) FailedRules() []RuleExec {
	var out []RuleExec
	for _, r := range d.Rules {
		if r.Result == RuleFail {
			out = append(out, r)
		}
	}
	return out
}
