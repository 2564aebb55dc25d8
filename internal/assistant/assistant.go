// Package assistant answers auditor questions about one audit task using the
// Anthropic Messages API. The task and its detail are rendered into the
// system prompt; the chat history is replayed as alternating turns.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"repair-fund-audit/internal/logging"
	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/telemetry"
)

const instrumentationName = "repair-fund-audit/internal/assistant"

// NoReply is returned as the answer when the model produced no text.
const NoReply = "抱歉，我无法生成回复。"

var (
	ErrAPIKeyRequired = errors.New("anthropic API key required")
	ErrEmptyQuestion  = errors.New("question is empty")
)

type Assistant struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	prompt    *template.Template
	logger    *slog.Logger
}

// New builds an assistant. opts are passed to the Anthropic client, which is
// how tests point it at a fake endpoint.
func New(apiKey, model string, maxTokens int64, logger *slog.Logger, opts ...option.RequestOption) (*Assistant, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set assistant.api_key or ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if logger == nil {
		logger = logging.Discard()
	}

	tmpl, err := template.New("system").Funcs(template.FuncMap{"yuan": yuan}).Parse(systemPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}

	aiMetricsOnce.Do(initAIMetrics)

	return &Assistant{
		client:    anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		prompt:    tmpl,
		logger:    logger,
	}, nil
}

// Ask sends question, preceded by history, in the context of task. detail
// may be nil when the task has none.
func (a *Assistant) Ask(ctx context.Context, task modal.AuditTask, detail *modal.AuditDetail, history []modal.ChatMessage, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	system, err := a.renderSystem(task, detail)
	if err != nil {
		return "", err
	}

	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		if m.Text == "" {
			continue
		}
		// The API requires the conversation to open with a user turn.
		if len(msgs) == 0 && m.Role != modal.ChatUser {
			continue
		}
		switch m.Role {
		case modal.ChatUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case modal.ChatAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(question)))

	return a.call(ctx, "ask", task.ID, system, msgs)
}

// Summarize produces a short risk summary of the task for the detail page.
func (a *Assistant) Summarize(ctx context.Context, task modal.AuditTask, detail *modal.AuditDetail) (string, error) {
	system, err := a.renderSystem(task, detail)
	if err != nil {
		return "", err
	}
	msgs := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(summarizeInstruction)),
	}
	return a.call(ctx, "summarize", task.ID, system, msgs)
}

var aiMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var aiMetricsOnce sync.Once

func initAIMetrics() {
	m := telemetry.Meter(instrumentationName)
	aiMetrics.inputTokens, _ = m.Int64Counter("auditdesk.assistant.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.outputTokens, _ = m.Int64Counter("auditdesk.assistant.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	aiMetrics.duration, _ = m.Float64Histogram("auditdesk.assistant.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

func (a *Assistant) call(ctx context.Context, op string, taskID int64, system string, msgs []anthropic.MessageParam) (string, error) {
	ctx, span := telemetry.Tracer(instrumentationName).Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(
		attribute.String("auditdesk.assistant.model", string(a.model)),
		attribute.String("auditdesk.assistant.operation", op),
		attribute.Int64("audit.task_id", taskID),
	)

	t0 := time.Now()
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  msgs,
	})
	ms := float64(time.Since(t0).Milliseconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn("assistant call failed", "op", op, "taskId", taskID, "error", err)
		return "", fmt.Errorf("assistant %s: %w", op, err)
	}

	modelAttr := attribute.String("auditdesk.assistant.model", string(a.model))
	if aiMetrics.inputTokens != nil {
		aiMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
		aiMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
		aiMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
	}
	span.SetAttributes(
		attribute.Int64("auditdesk.assistant.input_tokens", message.Usage.InputTokens),
		attribute.Int64("auditdesk.assistant.output_tokens", message.Usage.OutputTokens),
	)
	a.logger.Debug("assistant replied", "op", op, "taskId", taskID, "durationMs", ms)

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return NoReply, nil
	}
	return sb.String(), nil
}

type promptData struct {
	Task   modal.AuditTask
	Detail *modal.AuditDetail
	Failed []modal.RuleExec
}

func (a *Assistant) renderSystem(task modal.AuditTask, detail *modal.AuditDetail) (string, error) {
	data := promptData{Task: task, Detail: detail}
	if detail != nil {
		data.Failed = detail.FailedRules()
	}
	var buf bytes.Buffer
	if err := a.prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}
	return buf.String(), nil
}

func yuan(v float64) string {
	return fmt.Sprintf("%.2f 元", v)
}

const summarizeInstruction = "请用三到五句话总结该申请的主要风险点和审核建议。"

const systemPromptTemplate = `你是一个物业专项维修资金审核中心的专家助手。请帮助审核员分析风险、理解工程预算和解读物业管理法规。请用专业、简洁的中文回答。

当前审核任务：
- 任务编号：{{.Task.ID}}
- 小区：{{.Task.CommunityName}}
- 项目：{{.Task.ProjectName}}
- 申请金额：{{yuan .Task.Amount}}
- 风险等级：{{.Task.RiskLevel}}
- 提交日期：{{.Task.SubmissionDate}}
{{- with .Detail}}

申请详情：
- 维修单位：{{.BaseInfo.RepairCompany}}
- 申请类型：{{.BaseInfo.ApplyType}}
- 紧急维修：{{if eq .BaseInfo.EmergencyFlag "Y"}}是{{else}}否{{end}}
- 资金余额：{{yuan .BaseInfo.Balance}}
{{- if .Materials}}
材料：
{{- range .Materials}}
- {{.Name}}（{{.Status}}）{{if .AIAnalysis}}：{{.AIAnalysis}}{{end}}
{{- end}}
{{- end}}
{{- if .ApportionmentList}}
分摊户数：{{len .ApportionmentList}}
{{- end}}
{{- if .AISummary}}
AI 初审意见：{{.AISummary}}
{{- end}}
{{- else}}

该任务暂无详细资料。
{{- end}}
{{- if .Failed}}

未通过的规则：
{{- range .Failed}}
- [{{.RuleCode}}] {{.RuleDesc}}：{{.Message}}
{{- end}}
{{- end}}
`
