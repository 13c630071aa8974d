package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/autoheal/internal/model"
	"github.com/ppiankov/autoheal/internal/report"
	"github.com/ppiankov/autoheal/internal/session"
)

// --- Input/Output types ---

// LogsInput defines parameters for the autoheal_logs tool.
type LogsInput struct {
	Generate int `json:"generate,omitempty" jsonschema:"number of new records to generate before listing"`
	Limit    int `json:"limit,omitempty" jsonschema:"maximum number of records to return, newest last"`
}

// LogItem summarizes one record.
type LogItem struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Severity  string `json:"severity"`
	Node      string `json:"node"`
	Workflow  string `json:"workflow"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Fixed     bool   `json:"fixed"`
}

// LogsOutput lists records.
type LogsOutput struct {
	Records []LogItem `json:"records"`
}

// SelectInput defines parameters for the autoheal_select tool.
type SelectInput struct {
	ID string `json:"id" jsonschema:"record id to select"`
}

// SelectOutput echoes the selected record.
type SelectOutput struct {
	Record LogItem `json:"record"`
	RawLog string  `json:"raw_log"`
}

// EmptyInput is used by tools that take no parameters.
type EmptyInput struct{}

// TroubleshootOutput carries the fix proposal or the failure.
type TroubleshootOutput struct {
	OK               bool     `json:"ok"`
	Failure          string   `json:"failure,omitempty"`
	Explanation      string   `json:"explanation,omitempty"`
	Confidence       int      `json:"confidence,omitempty"`
	FixKind          string   `json:"fix_kind,omitempty"`
	Steps            []string `json:"steps,omitempty"`
	ToolTrace        []string `json:"tool_trace,omitempty"`
	Similar          []string `json:"similar,omitempty"`
	RiskLevel        string   `json:"risk_level"`
	DowntimeMinutes  int      `json:"downtime_minutes"`
	AffectedSLA      bool     `json:"affected_sla"`
	Downstream       []string `json:"downstream,omitempty"`
	RequiresApproval bool     `json:"requires_approval"`
}

// ApproveInput defines parameters for the autoheal_approve tool.
type ApproveInput struct {
	Approver string `json:"approver" jsonschema:"name of the second approver"`
}

// ApproveOutput confirms the approval.
type ApproveOutput struct {
	Confirmed bool   `json:"confirmed"`
	Approver  string `json:"approver,omitempty"`
	Error     string `json:"error,omitempty"`
}

// StartOutput reports whether an execution started.
type StartOutput struct {
	Started bool   `json:"started"`
	Reason  string `json:"reason,omitempty"`
}

// AbortOutput reports whether anything was aborted.
type AbortOutput struct {
	Aborted bool `json:"aborted"`
}

// StatusInput defines parameters for the autoheal_status tool.
type StatusInput struct {
	Wait bool `json:"wait,omitempty" jsonschema:"block until the running fix finishes"`
}

// EntryItem is one audit entry.
type EntryItem struct {
	ID           string `json:"id"`
	RecordID     string `json:"record_id"`
	Index        int    `json:"index"`
	Total        int    `json:"total"`
	Outcome      string `json:"outcome"`
	Timestamp    string `json:"ts"`
	MasterReason string `json:"master_reason"`
	Note         string `json:"note,omitempty"`
}

// StatusOutput is the session view.
type StatusOutput struct {
	Selected      string      `json:"selected,omitempty"`
	State         string      `json:"state"`
	RunID         string      `json:"run_id,omitempty"`
	MasterReason  string      `json:"master_reason,omitempty"`
	Current       int         `json:"current"`
	Total         int         `json:"total"`
	ApprovalGated bool        `json:"approval_gated"`
	Approver      string      `json:"approver,omitempty"`
	Impact        string      `json:"impact,omitempty"`
	Lines         []string    `json:"lines,omitempty"`
	Entries       []EntryItem `json:"entries,omitempty"`
	Fixed         []string    `json:"fixed"`
}

// ReportInput defines parameters for the autoheal_report tool.
type ReportInput struct {
	Dir string `json:"dir,omitempty" jsonschema:"directory to save the report into; omit to only return the text"`
}

// ReportOutput carries the rendered report.
type ReportOutput struct {
	Available  bool    `json:"available"`
	Text       string  `json:"text,omitempty"`
	Path       string  `json:"path,omitempty"`
	HoursSaved float64 `json:"hours_saved,omitempty"`
}

// PendingOutput lists approval requests.
type PendingOutput struct {
	Approvals []PendingItem `json:"approvals"`
}

// PendingItem describes a single approval request.
type PendingItem struct {
	Key       string `json:"key"`
	Status    string `json:"status"`
	RecordID  string `json:"record_id"`
	Approver  string `json:"approver,omitempty"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
}

// --- Handlers ---

func (s *Server) handleLogs(ctx context.Context, req *mcpsdk.CallToolRequest, input LogsInput) (*mcpsdk.CallToolResult, LogsOutput, error) {
	if input.Generate > 0 {
		s.session.AddRecords(s.generator.Records(input.Generate)...)
	}

	recs := s.session.Records()
	if input.Limit > 0 && len(recs) > input.Limit {
		recs = recs[len(recs)-input.Limit:]
	}

	out := LogsOutput{Records: make([]LogItem, 0, len(recs))}
	for _, r := range recs {
		fixed, err := s.session.Fixed().Has(ctx, r.ID)
		if err != nil {
			return nil, LogsOutput{}, err
		}
		item := logItem(r)
		item.Fixed = fixed
		out.Records = append(out.Records, item)
	}
	return nil, out, nil
}

func (s *Server) handleSelect(ctx context.Context, req *mcpsdk.CallToolRequest, input SelectInput) (*mcpsdk.CallToolResult, SelectOutput, error) {
	rec, err := s.session.Select(input.ID)
	if err != nil {
		if errors.Is(err, session.ErrUnknownRecord) {
			return &mcpsdk.CallToolResult{IsError: true}, SelectOutput{}, nil
		}
		return nil, SelectOutput{}, err
	}
	return nil, SelectOutput{Record: logItem(rec), RawLog: rec.RawLog}, nil
}

func (s *Server) handleTroubleshoot(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, TroubleshootOutput, error) {
	res, err := s.session.Troubleshoot(ctx)
	if err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, TroubleshootOutput{Failure: err.Error()}, nil
	}

	out := TroubleshootOutput{
		RiskLevel:       string(res.Impact.RiskLevel),
		DowntimeMinutes: res.Impact.DowntimeMinutes,
		AffectedSLA:     res.Impact.AffectedSLA,
		Downstream:      res.Impact.DownstreamSystems,
	}
	if !res.OK() {
		out.Failure = res.Failure.Message
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	p := res.Proposal
	out.OK = true
	out.Explanation = p.Justification
	out.Confidence = p.Confidence
	out.FixKind = string(p.Kind)
	out.Steps = p.Steps
	out.ToolTrace = p.ToolTrace
	out.Similar = res.Similar
	out.RequiresApproval = errors.Is(s.session.CheckExecute(), session.ErrApprovalPending)
	return nil, out, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	s.session.SetApprover(input.Approver)
	if err := s.session.ConfirmApproval(); err != nil {
		return &mcpsdk.CallToolResult{IsError: true}, ApproveOutput{Error: err.Error()}, nil
	}
	return nil, ApproveOutput{Confirmed: true, Approver: input.Approver}, nil
}

func (s *Server) handleExecute(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, StartOutput, error) {
	if err := s.session.CheckExecute(); err != nil {
		return nil, StartOutput{Reason: err.Error()}, nil
	}
	// The fix outlives the tool call.
	return nil, StartOutput{Started: s.session.ExecuteFix(context.WithoutCancel(ctx))}, nil
}

func (s *Server) handleApplyAll(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, StartOutput, error) {
	if err := s.session.CheckApplyAll(); err != nil {
		return nil, StartOutput{Reason: err.Error()}, nil
	}
	return nil, StartOutput{Started: s.session.ApplyToAll(context.WithoutCancel(ctx))}, nil
}

func (s *Server) handleAbort(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, AbortOutput, error) {
	return nil, AbortOutput{Aborted: s.session.Abort()}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if input.Wait {
		if err := s.session.Wait(ctx); err != nil {
			return nil, StatusOutput{}, err
		}
	}

	v, err := s.session.View(ctx)
	if err != nil {
		return nil, StatusOutput{}, err
	}

	out := StatusOutput{
		State:         string(v.State),
		RunID:         v.Progress.RunID,
		MasterReason:  v.MasterReason,
		Current:       v.Progress.Current,
		Total:         v.Progress.Total,
		ApprovalGated: v.Gate.Blocks(),
		Approver:      v.Gate.Approver,
		Lines:         v.Lines,
		Fixed:         v.Fixed,
	}
	if v.Selected != nil {
		out.Selected = v.Selected.ID
	}
	if v.Projection != nil {
		out.Impact = v.Projection.Summary
	}
	for _, e := range v.Entries {
		out.Entries = append(out.Entries, EntryItem{
			ID:           e.ID,
			RecordID:     e.RecordID,
			Index:        e.Index,
			Total:        e.Total,
			Outcome:      string(e.Outcome),
			Timestamp:    e.Timestamp,
			MasterReason: e.MasterReason,
			Note:         e.Note,
		})
	}
	return nil, out, nil
}

func (s *Server) handleReport(ctx context.Context, req *mcpsdk.CallToolRequest, input ReportInput) (*mcpsdk.CallToolResult, ReportOutput, error) {
	r, ok := s.session.Report(time.Now())
	if !ok {
		return nil, ReportOutput{}, nil
	}

	out := ReportOutput{
		Available:  true,
		Text:       report.Build(r),
		HoursSaved: report.TimeSaved(r.ResolvedCount),
	}
	if input.Dir != "" {
		path, err := report.Write(input.Dir, r)
		if err != nil {
			return nil, ReportOutput{}, fmt.Errorf("save report: %w", err)
		}
		out.Path = path
	}
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(list))
	for i, a := range list {
		items[i] = PendingItem{
			Key:       a.Key,
			Status:    string(a.Status),
			RecordID:  a.RecordID,
			Approver:  a.Approver,
			Reason:    a.Reason,
			CreatedAt: a.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Approvals: items}, nil
}

func logItem(r model.Record) LogItem {
	return LogItem{
		ID:        r.ID,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		Severity:  string(r.Severity),
		Node:      r.NodeID,
		Workflow:  r.WorkflowName,
		ErrorCode: r.ErrorCode,
		Message:   r.Message,
	}
}

