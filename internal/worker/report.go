package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

// ReportStatus is the set of terminal statuses a worker may self-report
// through the in-process report tool.
type ReportStatus string

const (
	ReportComplete            ReportStatus = "complete"
	ReportNeedsClarification  ReportStatus = "needs_clarification"
	ReportFailed              ReportStatus = "failed"
)

// Report is the payload the in-process `report` tool receives from a
// running worker, matching spec.md §4.7's report(worker_id, status,
// summary, body?, artifacts?) contract.
type Report struct {
	WorkerID  string
	Status    ReportStatus
	Summary   string
	Body      string
	Artifacts []string
}

// reportTool finalizes a worker row from a Report, composing frontmatter-
// tagged markdown and mapping status to an attention kind. It is the
// single write path a running worker's in-process tool call reaches.
func reportTool(ctx context.Context, store *storage.Store, now time.Time, r Report) (string, error) {
	if r.WorkerID == "" {
		return "", fmt.Errorf("report: worker_id is required")
	}
	if r.Status != ReportComplete && r.Status != ReportNeedsClarification && r.Status != ReportFailed {
		return "", fmt.Errorf("report: invalid status %q", r.Status)
	}

	w, err := store.GetWorker(ctx, r.WorkerID)
	if err != nil {
		return "", fmt.Errorf("report: lookup worker: %w", err)
	}

	w.ReportSummary = r.Summary
	w.ReportMD = composeReportMarkdown(r)
	w.AttentionKind = models.AttentionKindForStatus(string(r.Status))
	w.AttentionTitle = r.Summary
	w.Severity = models.SeverityNormal
	if r.Status == ReportFailed {
		w.Severity = models.SeverityHigh
	}

	switch r.Status {
	case ReportComplete:
		w.Status = models.WorkerComplete
		completed := now
		w.CompletedAt = &completed
	case ReportFailed:
		w.Status = models.WorkerFailed
		w.LastError = r.Summary
		completed := now
		w.CompletedAt = &completed
	case ReportNeedsClarification:
		w.Status = models.WorkerAwaitingClarification
	}

	if err := store.CompleteWorker(ctx, w); err != nil {
		return "", fmt.Errorf("report: persist: %w", err)
	}
	return fmt.Sprintf("recorded %s report for worker %s", r.Status, models.ShortIDOf(r.WorkerID)), nil
}

func composeReportMarkdown(r Report) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "status: %s\n", r.Status)
	fmt.Fprintf(&sb, "summary: %s\n", r.Summary)
	if len(r.Artifacts) > 0 {
		sb.WriteString("artifacts:\n")
		for _, a := range r.Artifacts {
			fmt.Fprintf(&sb, "  - %s\n", a)
		}
	}
	sb.WriteString("---\n\n")
	if r.Body != "" {
		sb.WriteString(r.Body)
	} else {
		sb.WriteString(r.Summary)
	}
	return sb.String()
}

// synthesizeFailureReport finalizes a worker that reached stream end
// without ever calling the report tool, per spec.md §4.7 step 7.
func synthesizeFailureReport(ctx context.Context, store *storage.Store, now time.Time, workerID string) error {
	_, err := reportTool(ctx, store, now, Report{
		WorkerID: workerID,
		Status:   ReportFailed,
		Summary:  "Worker exited without calling report()",
	})
	return err
}
