package seed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-fund-audit/internal/modal"
)

func TestLoad_Embedded(t *testing.T) {
	f, err := Load("")
	require.NoError(t, err)

	ids := make([]int64, 0, len(f.Tasks))
	for _, task := range f.Tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []int64{1005, 1006, 1001, 1004, 1002, 1003}, ids)
	assert.Equal(t, modal.RiskHigh, f.Tasks[0].RiskLevel)
	assert.Equal(t, "2023-10-28", f.Tasks[0].SubmissionDate)

	require.Len(t, f.Details, 4)
	byID := map[int64]modal.AuditDetail{}
	for _, d := range f.Details {
		byID[d.TaskID] = d
	}
	assert.NotContains(t, byID, int64(1003))
	assert.NotContains(t, byID, int64(1004))

	d := byID[1005]
	assert.Equal(t, float64(1500000), d.BaseInfo.Balance)
	require.Len(t, d.FailedRules(), 1)
	assert.Equal(t, "R011", d.FailedRules()[0].RuleCode)
	assert.Equal(t, "3100223130", d.Extracts[1].Fields["invoiceNo"])
	assert.Len(t, byID[1001].ApportionmentList, 4)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tasks:
  - {auditTaskId: 7, bizType: REPAIR, bizId: 1, communityName: c, projectName: p, amount: 10, riskLevel: LOW, status: INIT, submissionDate: "2024-01-01"}
`), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.Len(t, f.Tasks, 1)
	assert.Equal(t, int64(7), f.Tasks[0].ID)
	assert.Empty(t, f.Details)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"duplicate id": `
tasks:
  - {auditTaskId: 1, riskLevel: LOW, status: INIT}
  - {auditTaskId: 1, riskLevel: LOW, status: INIT}
`,
		"bad risk": `
tasks:
  - {auditTaskId: 1, riskLevel: EXTREME, status: INIT}
`,
		"zero id": `
tasks:
  - {auditTaskId: 0, riskLevel: LOW, status: INIT}
`,
		"orphan detail": `
tasks:
  - {auditTaskId: 1, riskLevel: LOW, status: INIT}
details:
  - {taskId: 2}
`,
		"unknown field": `
tasks:
  - {auditTaskId: 1, riskLevel: LOW, status: INIT, owner: x}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.ErrorIs(t, err, ErrInvalidFixture)
		})
	}
}
