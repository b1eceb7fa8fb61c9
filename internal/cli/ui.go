package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/kre8/diagram-relay/internal/fulfillment"
	"github.com/kre8/diagram-relay/internal/model"
)

const (
	ruleWidth     = 60
	previewLength = 100
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	codeStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	processingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	// ErrorStyle renders fatal command errors.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)
)

func rule() string {
	return strings.Repeat("=", ruleWidth)
}

func statusText(s model.RequestStatus) string {
	switch s {
	case model.RequestStatusPending:
		return pendingStyle.Render(string(s))
	case model.RequestStatusProcessing:
		return processingStyle.Render(string(s))
	case model.RequestStatusCompleted:
		return successStyle.Render(string(s))
	default:
		return string(s)
	}
}

func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "   %s %s\n", labelStyle.Render(label+":"), value)
}

func preview(code string) string {
	if len(code) <= previewLength {
		return code
	}
	return code[:previewLength] + "..."
}

func printRequestSummary(w io.Writer, req *model.Request) {
	fmt.Fprintf(w, "\n%s\n", titleStyle.Render(fmt.Sprintf("Request #%d", req.ID)))
	field(w, "Message", req.Message)
	field(w, "Diagram Type", req.DiagramType)
	field(w, "Format", req.Format)
	field(w, "Status", statusText(req.Status))
	field(w, "Created", fmt.Sprintf("%s (%s ago)", req.CreatedAt.Local().Format(time.DateTime), req.Age().Round(time.Second)))
	if req.CurrentCode != "" {
		field(w, "Current Code", preview(req.CurrentCode))
	}
}

func printRequestDetail(w io.Writer, req *model.Request) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Request #%d Details", req.ID)))
	fmt.Fprintln(w, rule())
	field(w, "Message", req.Message)
	field(w, "Diagram Type", req.DiagramType)
	field(w, "Format", req.Format)
	field(w, "Status", statusText(req.Status))
	field(w, "Current Code", "")
	if req.CurrentCode != "" {
		fmt.Fprintln(w, codeStyle.Render(req.CurrentCode))
	} else {
		fmt.Fprintln(w, "   (none)")
	}
	fmt.Fprintln(w, rule())
	fmt.Fprintln(w, hintStyle.Render(fmt.Sprintf("To respond: respond %d '<diagram_code>'", req.ID)))
}

func printPendingList(w io.Writer, reqs []*model.Request) {
	fmt.Fprintln(w, titleStyle.Render("Pending Requests"))
	fmt.Fprintln(w, rule())

	if len(reqs) == 0 {
		fmt.Fprintln(w, successStyle.Render("No pending requests"))
		fmt.Fprintln(w, hintStyle.Render("Usage: respond <request_id> '<diagram_code>'"))
		return
	}

	for _, req := range reqs {
		printRequestSummary(w, req)
	}
	fmt.Fprintln(w, "\n"+rule())
	fmt.Fprintln(w, hintStyle.Render("To respond: respond <request_id> '<diagram_code>'"))
	fmt.Fprintln(w, hintStyle.Render("Example: respond 1 'digraph { A -> B; }'"))
}

func printStats(w io.Writer, st *fulfillment.Stats) {
	fmt.Fprintln(w, titleStyle.Render("Request Stats"))
	field(w, "Pending", pendingStyle.Render(fmt.Sprint(st.Pending)))
	field(w, "Processing", processingStyle.Render(fmt.Sprint(st.Processing)))
	field(w, "Completed", successStyle.Render(fmt.Sprint(st.Completed)))
	field(w, "Total", fmt.Sprint(st.Total))
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render("✓ "+fmt.Sprintf(format, args...)))
}
