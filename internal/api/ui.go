package api

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"repair-fund-audit/internal/modal"
	"repair-fund-audit/internal/queue"
)

type uiIndexData struct {
	Tasks     []modal.AuditTask
	Selection queue.Selection
	Draft     modal.Draft
	Journal   []modal.AuditEvent
	Error     string
}

var uiFuncs = template.FuncMap{
	"prettyJSON": prettyJSON,
	"taskPath":   taskPath,
	"yuan":       func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"results":    func() []modal.DecisionResult { return []modal.DecisionResult{modal.DecisionPass, modal.DecisionReject, modal.DecisionReturn} },
}

func (s *Server) registerUIRoutes(r chi.Router) {
	r.Get("/ui", s.handleIndex)
	r.Post("/ui/tasks/{taskId}/select", s.handleUISelect)
	r.Post("/ui/tasks/{taskId}/draft", s.handleUIDraft)
	r.Post("/ui/tasks/{taskId}/decision", s.handleUIDecision)
}

// handleIndex renders the queue, the selected task and its decision form.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderIndex(w, http.StatusOK, r.URL.Query().Get("error"))
}

func (s *Server) renderIndex(w http.ResponseWriter, status int, errMsg string) {
	sel := s.q.Selection()
	data := uiIndexData{
		Tasks:     s.q.Tasks(),
		Selection: sel,
		Journal:   s.q.Journal(),
		Error:     errMsg,
	}
	if sel.TaskID != 0 {
		data.Draft = s.q.Draft(sel.TaskID)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.ui.ExecuteTemplate(w, "index", data); err != nil {
		s.logger.Error("render ui", "error", err)
	}
}

func (s *Server) handleUISelect(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.q.Select(id); err != nil {
		s.renderIndex(w, statusFor(err), err.Error())
		return
	}
	http.Redirect(w, r, "/ui", http.StatusSeeOther)
}

func (s *Server) handleUIDraft(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.saveDraftForm(r, id); err != nil {
		s.renderIndex(w, statusFor(err), err.Error())
		return
	}
	http.Redirect(w, r, "/ui", http.StatusSeeOther)
}

// handleUIDecision saves whatever the form holds, then submits it.
func (s *Server) handleUIDecision(w http.ResponseWriter, r *http.Request) {
	id, err := taskIDParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.saveDraftForm(r, id); err != nil {
		s.renderIndex(w, statusFor(err), err.Error())
		return
	}

	decider := r.FormValue("decider")
	if decider == "" {
		decider = defaultDecider
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	if _, err := s.q.Submit(ctx, id, decider); err != nil {
		s.renderIndex(w, statusFor(err), err.Error())
		return
	}
	http.Redirect(w, r, "/ui", http.StatusSeeOther)
}

func (s *Server) saveDraftForm(r *http.Request, id int64) error {
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	var p draftPatch
	if r.PostForm.Has("result") {
		v := r.PostForm.Get("result")
		if _, err := modal.ParseDecisionResult(v); err != nil {
			return err
		}
		p.Result = &v
	}
	if r.PostForm.Has("comment") {
		v := r.PostForm.Get("comment")
		p.Comment = &v
	}
	if p.Result == nil && p.Comment == nil {
		return nil
	}
	_, err := s.applyDraft(id, p)
	return err
}

func prettyJSON(v any) template.HTML {
	b, _ := json.MarshalIndent(v, "", "  ")
	return template.HTML("<pre>" + template.HTMLEscapeString(string(b)) + "</pre>")
}

func taskPath(id int64) string {
	return "/ui/tasks/" + strconv.FormatInt(id, 10)
}

const uiTemplates = `
{{define "index"}}
<!doctype html>
<html>
<head>
  <meta charset="utf-8"/>
  {{if eq .Selection.State "LOADING"}}<meta http-equiv="refresh" content="1"/>{{end}}
  <title>维修资金审核</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    .cols { display: flex; gap: 24px; }
    .queue { width: 38%; }
    .detail { flex: 1; }
    table { border-collapse: collapse; width: 100%; margin-top: 12px; }
    th, td { border: 1px solid #ddd; padding: 6px; }
    tr.selected { background: #eef4ff; }
    .err { color: #b00020; }
    .muted { color: #666; }
    .risk-HIGH { color: #b00020; font-weight: bold; }
    .risk-MEDIUM { color: #b26a00; }
    pre { background: #f7f7f7; padding: 12px; overflow: auto; }
  </style>
</head>
<body>
  <h2>维修资金审核 ({{len .Tasks}} 待审)</h2>

  {{if .Error}}<p class="err">{{.Error}}</p>{{end}}

  <div class="cols">
  <div class="queue">
    <table>
      <thead><tr><th>任务</th><th>小区 / 项目</th><th>金额</th><th>风险</th><th></th></tr></thead>
      <tbody>
      {{range .Tasks}}
        <tr{{if eq .ID $.Selection.TaskID}} class="selected"{{end}}>
          <td>{{.ID}}</td>
          <td>{{.CommunityName}}<br/><span class="muted">{{.ProjectName}}</span></td>
          <td>{{yuan .Amount}}</td>
          <td class="risk-{{.RiskLevel}}">{{.RiskLevel}}</td>
          <td>
            <form method="post" action="{{taskPath .ID}}/select">
              <button type="submit">查看</button>
            </form>
          </td>
        </tr>
      {{else}}
        <tr><td colspan="5" class="muted">队列已清空</td></tr>
      {{end}}
      </tbody>
    </table>
  </div>

  <div class="detail">
    {{template "detail" .}}
  </div>
  </div>

  <h3>操作记录</h3>
  <table>
    <thead><tr><th>Time</th><th>Kind</th><th>Task</th><th>Message</th></tr></thead>
    <tbody>
      {{range .Journal}}
        <tr>
          <td>{{.At.Format "15:04:05.000"}}</td>
          <td>{{.Kind}}</td>
          <td>{{if .TaskID}}{{.TaskID}}{{end}}</td>
          <td>{{.Message}}</td>
        </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>
{{end}}

{{define "detail"}}
  {{$sel := .Selection}}
  {{if eq $sel.State "EMPTY"}}
    <p class="muted">未选择任务</p>
  {{else}}
    <h3>任务 {{$sel.TaskID}}{{with $sel.Task}} · {{.CommunityName}}{{end}}</h3>

    {{if eq $sel.State "LOADING"}}
      <p class="muted">加载中…</p>
    {{else if eq $sel.State "FAILED"}}
      <p class="err">详情加载失败：{{$sel.Error}}</p>
      <form method="post" action="{{taskPath $sel.TaskID}}/select">
        <button type="submit">重试</button>
      </form>
    {{else if not $sel.DetailAvailable}}
      <p class="muted">暂无详细资料</p>
    {{else}}
      {{with $sel.Detail}}
        <p><b>维修单位：</b>{{.BaseInfo.RepairCompany}}<br/>
           <b>申请类型：</b>{{.BaseInfo.ApplyType}}<br/>
           <b>紧急维修：</b>{{.BaseInfo.EmergencyFlag}}<br/>
           <b>资金余额：</b>{{yuan .BaseInfo.Balance}}</p>
        {{if .AISummary}}<p><b>AI 初审：</b>{{.AISummary}}</p>{{end}}

        <h4>规则校验</h4>
        <table>
          <thead><tr><th>规则</th><th>结果</th><th>风险</th><th>说明</th></tr></thead>
          <tbody>
          {{range .Rules}}
            <tr>
              <td>{{.RuleCode}} {{.RuleDesc}}</td>
              <td>{{.Result}}</td>
              <td class="risk-{{.RiskLevel}}">{{.RiskLevel}}</td>
              <td>{{.Message}}</td>
            </tr>
          {{end}}
          </tbody>
        </table>

        {{if .Materials}}
        <h4>材料</h4>
        <table>
          <thead><tr><th>名称</th><th>节点</th><th>状态</th><th>AI 分析</th></tr></thead>
          <tbody>
          {{range .Materials}}
            <tr><td>{{.Name}}{{if .IsRequired}} *{{end}}</td><td>{{.Node}}</td><td>{{.Status}}</td><td>{{.AIAnalysis}}</td></tr>
          {{end}}
          </tbody>
        </table>
        {{end}}

        {{if .ApportionmentList}}
        <h4>分摊明细</h4>
        <table>
          <thead><tr><th>房号</th><th>业主</th><th>面积</th><th>金额</th></tr></thead>
          <tbody>
          {{range .ApportionmentList}}
            <tr><td>{{.RoomNo}}</td><td>{{.OwnerName}}</td><td>{{.Area}}</td><td>{{yuan .Amount}}</td></tr>
          {{end}}
          </tbody>
        </table>
        {{end}}

        {{range .Extracts}}
          <h4>提取：{{.Type}}</h4>
          {{prettyJSON .Fields}}
        {{end}}
      {{end}}
    {{end}}

    <h4>审核意见</h4>
    <form method="post" action="{{taskPath $sel.TaskID}}/decision">
      {{range results}}
        <label><input type="radio" name="result" value="{{.}}"{{if eq . $.Draft.Result}} checked{{end}}/> {{.}}</label>
      {{end}}
      <br/><br/>
      <label>意见：<br/><textarea name="comment" rows="3" cols="60">{{$.Draft.Comment}}</textarea></label><br/><br/>
      <label>审核人：<input name="decider" value=""/></label><br/><br/>
      <button type="submit" formaction="{{taskPath $sel.TaskID}}/draft">保存草稿</button>
      <button type="submit">提交</button>
    </form>
  {{end}}
{{end}}
`
