package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair-fund-audit/internal/modal"
)

type capturedRequest struct {
	System   []map[string]any `json:"system"`
	Messages []struct {
		Role    string           `json:"role"`
		Content []map[string]any `json:"content"`
	} `json:"messages"`
	Model     string `json:"model"`
	MaxTokens int64  `json:"max_tokens"`
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	content  []map[string]any
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var req capturedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"type":  "error",
				"error": map[string]any{"type": "invalid_request_error", "message": "bad request"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_test123",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-3-5-haiku-20241022",
			"content":     f.content,
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 120, "output_tokens": 30},
		})
	}
}

func newTestAssistant(t *testing.T, api *fakeAPI) *Assistant {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	a, err := New("test-key", "claude-3-5-haiku-latest", 256, nil,
		option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)
	return a
}

func task() modal.AuditTask {
	return modal.AuditTask{
		ID:            1001,
		CommunityName: "阳光花园",
		ProjectName:   "外墙防水维修",
		Amount:        125000,
		RiskLevel:     modal.RiskHigh,
	}
}

func detail() *modal.AuditDetail {
	return &modal.AuditDetail{
		TaskID:   1001,
		BaseInfo: modal.BaseInfo{RepairCompany: "宏达建筑", EmergencyFlag: "Y"},
		Rules: []modal.RuleExec{
			{RuleCode: "R001", RuleDesc: "业主表决比例", Result: modal.RulePass},
			{RuleCode: "R007", RuleDesc: "预算单价", Result: modal.RuleFail, Message: "单价偏高"},
		},
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("", "m", 0, nil)
	require.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestAsk(t *testing.T) {
	api := &fakeAPI{content: []map[string]any{{"type": "text", "text": "预算单价偏高，建议退回。"}}}
	a := newTestAssistant(t, api)

	history := []modal.ChatMessage{
		{Role: modal.ChatAssistant, Text: "您好，我是审核助手。"},
		{Role: modal.ChatUser, Text: "这个项目紧急吗？"},
		{Role: modal.ChatAssistant, Text: "是紧急维修。"},
	}
	reply, err := a.Ask(context.Background(), task(), detail(), history, "  需要退回吗？ ")
	require.NoError(t, err)
	assert.Equal(t, "预算单价偏高，建议退回。", reply)

	require.Len(t, api.requests, 1)
	req := api.requests[0]
	assert.Equal(t, "claude-3-5-haiku-latest", req.Model)
	assert.Equal(t, int64(256), req.MaxTokens)

	require.Len(t, req.System, 1)
	system, _ := req.System[0]["text"].(string)
	assert.Contains(t, system, "阳光花园")
	assert.Contains(t, system, "125000.00 元")
	assert.Contains(t, system, "紧急维修：是")
	assert.Contains(t, system, "[R007] 预算单价：单价偏高")
	assert.NotContains(t, system, "R001")

	require.Len(t, req.Messages, 3)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "assistant", req.Messages[1].Role)
	assert.Equal(t, "user", req.Messages[2].Role)
	assert.Equal(t, "需要退回吗？", req.Messages[2].Content[0]["text"])
}

func TestAsk_WithoutDetail(t *testing.T) {
	api := &fakeAPI{content: []map[string]any{{"type": "text", "text": "ok"}}}
	a := newTestAssistant(t, api)

	_, err := a.Ask(context.Background(), task(), nil, nil, "有什么风险？")
	require.NoError(t, err)

	system, _ := api.requests[0].System[0]["text"].(string)
	assert.Contains(t, system, "该任务暂无详细资料")
}

func TestAsk_EmptyQuestion(t *testing.T) {
	a := newTestAssistant(t, &fakeAPI{})

	_, err := a.Ask(context.Background(), task(), nil, nil, "   ")
	require.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAsk_NoTextFallsBack(t *testing.T) {
	a := newTestAssistant(t, &fakeAPI{content: []map[string]any{}})

	reply, err := a.Ask(context.Background(), task(), nil, nil, "hi")
	require.NoError(t, err)
	assert.Equal(t, NoReply, reply)
}

func TestAsk_APIError(t *testing.T) {
	a := newTestAssistant(t, &fakeAPI{status: http.StatusBadRequest})

	_, err := a.Ask(context.Background(), task(), nil, nil, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assistant ask")
}

func TestSummarize(t *testing.T) {
	api := &fakeAPI{content: []map[string]any{{"type": "text", "text": "风险中等。"}}}
	a := newTestAssistant(t, api)

	got, err := a.Summarize(context.Background(), task(), detail())
	require.NoError(t, err)
	assert.Equal(t, "风险中等。", got)
	require.Len(t, api.requests[0].Messages, 1)
	assert.Equal(t, summarizeInstruction, api.requests[0].Messages[0].Content[0]["text"])
}
