package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
	"github.com/vertextoedge/modfetch/internal/service/metrics"
	"github.com/vertextoedge/modfetch/internal/service/progress"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))  // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
)

func printError(msg string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("✗ "+msg))
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func statusCell(status domain.ResultStatus) string {
	switch status {
	case domain.StatusCompleted:
		return successStyle.Render(string(status))
	case domain.StatusSkipped:
		return warningStyle.Render(string(status))
	default:
		return errorStyle.Render(string(status))
	}
}

// resultDetail is the last column of the results table
func resultDetail(r domain.DownloadResult) string {
	switch r.Status {
	case domain.StatusCompleted:
		switch {
		case r.CacheHit:
			return "already present"
		case r.Resumed:
			return "resumed"
		}
		return ""
	case domain.StatusSkipped:
		return r.Reason
	default:
		if r.Err != nil {
			return r.Err.Error()
		}
		return string(r.Category)
	}
}

func renderResults(runID string, results []domain.DownloadResult, snap metrics.Snapshot, elapsed time.Duration) string {
	sorted := append([]domain.DownloadResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RequestID < sorted[j].RequestID })

	t := newTable("Request", "Kind", "Status", "Size", "Retries", "Detail")
	for _, r := range sorted {
		size := ""
		if r.Status == domain.StatusCompleted {
			size = progress.FormatBytes(r.Size)
		}
		t.Row(r.RequestID, string(r.Kind), statusCell(r.Status), size, strconv.Itoa(r.Retries), resultDetail(r))
	}

	summary := fmt.Sprintf("run %s: %d completed (%d cached), %d skipped, %d failed, %s transferred, %d retries, %.0f%% success in %s",
		runID, snap.Completed, snap.CacheHits, snap.Skipped, snap.Failed,
		progress.FormatBytes(snap.BytesTransferred), snap.RetryCount, snap.SuccessRate()*100,
		elapsed.Round(time.Millisecond))

	out := t.String() + "\n" + headerStyle.Render(summary)
	if cats := snap.Categories(); len(cats) > 0 {
		ct := newTable("Failure", "Count", "Suggestion")
		for _, c := range cats {
			ct.Row(string(c), strconv.FormatInt(snap.FailuresByCategory[c], 10), c.Suggestion())
		}
		out += "\n" + ct.String()
	}
	return out
}

func renderRuns(runs []*port.RunRecord) string {
	t := newTable("Run", "Started", "Finished", "Total", "Completed", "Skipped", "Failed", "Bytes")
	for _, r := range runs {
		finished := warningStyle.Render("unfinished")
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		failed := strconv.Itoa(r.Failed)
		if r.Failed > 0 {
			failed = errorStyle.Render(failed)
		}
		t.Row(
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			finished,
			strconv.Itoa(r.Total),
			strconv.Itoa(r.Completed),
			strconv.Itoa(r.Skipped),
			failed,
			progress.FormatBytes(r.Bytes),
		)
	}
	return t.String()
}
