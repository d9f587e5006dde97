// Package display provides terminal formatting for mailwatch output.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/daviddao/mailwatch/internal/types"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	HighStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	NormalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	LowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// ImportanceDot returns a colored dot for a message importance.
func ImportanceDot(importance string) string {
	switch strings.ToLower(importance) {
	case "high":
		return HighStyle.Render("●")
	case "normal":
		return NormalStyle.Render("○")
	case "low":
		return LowStyle.Render("○")
	default:
		return Dim.Render("·")
	}
}

// MailboxLabel returns a short label for a mailbox, derived from its
// domain ("soc@example.com" -> "example").
func MailboxLabel(mailbox string) string {
	if idx := strings.Index(mailbox, "@"); idx > 0 {
		domain := mailbox[idx+1:]
		if dotIdx := strings.Index(domain, "."); dotIdx > 0 {
			return domain[:dotIdx]
		}
		return domain
	}
	return mailbox
}

// TimeAgo formats an ISO date string as a relative time.
func TimeAgo(isoDate string) string {
	return timeAgo(isoDate, time.Now())
}

func timeAgo(isoDate string, now time.Time) string {
	if isoDate == "" {
		return ""
	}

	var t time.Time
	var err error
	for _, layout := range []string{time.RFC3339, types.TimeFormat, "2006-01-02 15:04:05", time.RFC3339Nano} {
		t, err = time.Parse(layout, isoDate)
		if err == nil {
			break
		}
	}
	if err != nil {
		return isoDate[:min(10, len(isoDate))]
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

// Truncate shortens a string to maxLen runes, adding an ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// SubHeader prints a dim subsection label.
func SubHeader(w io.Writer, title string) {
	fmt.Fprintln(w, Muted.Render(title))
}

// LabelValue returns the first label value of the given type.
func LabelValue(labels []types.Label, typ string) string {
	for _, l := range labels {
		if l.Type == typ {
			return l.Value
		}
	}
	return ""
}

// FetchSummary prints the outcome of one fetch cycle.
func FetchSummary(w io.Writer, s *types.FetchSummary) {
	Header(w, "Fetch "+s.Mailbox)
	folder := s.FolderPath
	if s.Reset {
		folder += " " + Dim.Render("(resolved, cursor reset)")
	}
	fmt.Fprintf(w, "  Folder:   %s\n", folder)
	fmt.Fprintf(w, "  Fetched:  %d\n", s.Fetched)
	fmt.Fprintf(w, "  Stored:   %d %s\n", s.Stored, Dim.Render(fmt.Sprintf("(%d total)", s.TotalStored)))
	next := s.NextCursor.LastRunTime
	if n := len(s.NextCursor.LastRunIDs); n > 0 {
		next += Dim.Render(fmt.Sprintf(" (%d seen)", n))
	}
	fmt.Fprintf(w, "  Next run: from %s\n", next)
}

// IncidentTree prints an incident in a tree-style format.
// connector is one of "┌─", "├─", "└─".
func IncidentTree(w io.Writer, connector string, inc types.Incident) {
	importance := LabelValue(inc.Labels, "Email/Importance")
	from := LabelValue(inc.Labels, "Email/From")
	fmt.Fprintf(w, "  %s %s %s  ·  %s\n",
		Muted.Render(connector), ImportanceDot(importance),
		Bold.Render(Truncate(inc.Name, 60)), Dim.Render(TimeAgo(inc.Occurred)))

	prefix := "  │  "
	if connector == "└─" {
		prefix = "     "
	}
	if from != "" {
		fmt.Fprintf(w, "%s%s\n", Muted.Render(prefix), Dim.Render(from))
	}
	if n := len(inc.Attachment); n > 0 {
		fmt.Fprintf(w, "%s%s\n", Muted.Render(prefix), Dim.Render(fmt.Sprintf("%d attachment(s)", n)))
	}

	details := strings.TrimSpace(inc.Details)
	if details == "" {
		return
	}
	lines := strings.Split(details, "\n")
	maxLines := 3
	for i, line := range lines {
		if i >= maxLines {
			fmt.Fprintf(w, "%s%s\n", Muted.Render(prefix), Dim.Render(fmt.Sprintf("... (%d more lines)", len(lines)-maxLines)))
			break
		}
		fmt.Fprintf(w, "%s%s\n", Muted.Render(prefix), Truncate(strings.TrimSpace(line), 80))
	}
}

// Connector picks the tree connector for item i of n.
func Connector(i, n int) string {
	switch {
	case i == n-1:
		return "└─"
	case i == 0:
		return "┌─"
	default:
		return "├─"
	}
}
