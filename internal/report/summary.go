package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// AssertionResult is one evaluated run assertion, as printed in the summary.
type AssertionResult struct {
	Expression string
	Actual     string
	Passed     bool
}

// Palette holds the summary colors.
type Palette struct {
	Title   *color.Color
	Rule    *color.Color
	Value   *color.Color
	Success *color.Color
	Warn    *color.Color
	Error   *color.Color
}

// NewPalette returns the summary colors, disabled when enabled is false.
func NewPalette(enabled bool) *Palette {
	p := &Palette{
		Title:   color.New(color.Bold),
		Rule:    color.New(color.FgCyan),
		Value:   color.New(color.FgCyan),
		Success: color.New(color.FgGreen, color.Bold),
		Warn:    color.New(color.FgYellow, color.Bold),
		Error:   color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.Title, p.Rule, p.Value, p.Success, p.Warn, p.Error} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Summary renders the end-of-run report.
type Summary struct {
	Name       string
	Snapshot   *Snapshot
	Assertions []AssertionResult
}

// Passed reports whether every assertion held.
func (s *Summary) Passed() bool {
	for _, a := range s.Assertions {
		if !a.Passed {
			return false
		}
	}
	return true
}

// Write renders the summary to w. Colors are used only when w is a terminal
// and NO_COLOR is unset.
func (s *Summary) Write(w io.Writer) {
	s.WriteWith(w, NewPalette(IsTerminal(w) && os.Getenv("NO_COLOR") == ""))
}

// WriteWith renders the summary using p.
func (s *Summary) WriteWith(w io.Writer, p *Palette) {
	snap := s.Snapshot
	line := strings.Repeat("━", 64)

	status := p.Success.Sprint("Completed ✓")
	if !s.Passed() {
		status = p.Error.Sprint("Failed ✗")
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, p.Rule.Sprint(line))
	fmt.Fprintf(w, "%s - %s\n", p.Title.Sprint(s.Name), status)
	fmt.Fprintln(w, p.Rule.Sprint(line))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Duration:      %s\n", p.Value.Sprint(formatDuration(snap.Elapsed)))
	fmt.Fprintf(w, "Users:         %s started, %s finished\n",
		p.Value.Sprint(formatNumber(snap.Started)), p.Value.Sprint(formatNumber(snap.Finished)))
	fmt.Fprintf(w, "Requests:      %s (%.1f/s)\n", p.Value.Sprint(formatNumber(snap.Requests)), snap.RPS)

	okPct := 100 - snap.FailedPercent()
	okColor := p.Success
	if okPct < 99 {
		okColor = p.Warn
	}
	if okPct < 95 {
		okColor = p.Error
	}
	fmt.Fprintf(w, "Success Rate:  %s\n", okColor.Sprintf("%.1f%%", okPct))
	fmt.Fprintln(w)

	if snap.Latency.Count > 0 {
		fmt.Fprintln(w, p.Title.Sprint("Latency Distribution:"))
		fmt.Fprintf(w, "  Min:  %s\n", formatDurationShort(snap.Latency.Min))
		fmt.Fprintf(w, "  P50:  %s\n", formatDurationShort(snap.Latency.P50))
		fmt.Fprintf(w, "  P90:  %s\n", formatDurationShort(snap.Latency.P90))
		fmt.Fprintf(w, "  P95:  %s\n", formatDurationShort(snap.Latency.P95))
		fmt.Fprintf(w, "  P99:  %s\n", formatDurationShort(snap.Latency.P99))
		fmt.Fprintf(w, "  Max:  %s\n", formatDurationShort(snap.Latency.Max))
		fmt.Fprintln(w)
	}

	if len(snap.Actions) > 0 {
		fmt.Fprintln(w, p.Title.Sprint("Actions:"))
		fmt.Fprintf(w, "  %-32s %8s %8s %10s %10s\n", "name", "count", "ko", "p50", "p95")
		for _, a := range snap.Actions {
			ko := fmt.Sprintf("%8d", a.Failed)
			if a.Failed > 0 {
				ko = p.Error.Sprint(ko)
			}
			fmt.Fprintf(w, "  %-32s %8d %s %10s %10s\n", truncate(a.Name, 32), a.Count, ko,
				formatDurationShort(a.Latency.P50), formatDurationShort(a.Latency.P95))
		}
		fmt.Fprintln(w)
	}

	if len(snap.Failures) > 0 {
		fmt.Fprintln(w, p.Title.Sprint("Failures:"))
		reasons := make([]string, 0, len(snap.Failures))
		for r := range snap.Failures {
			reasons = append(reasons, r)
		}
		sort.Slice(reasons, func(i, j int) bool {
			if snap.Failures[reasons[i]] != snap.Failures[reasons[j]] {
				return snap.Failures[reasons[i]] > snap.Failures[reasons[j]]
			}
			return reasons[i] < reasons[j]
		})
		for _, r := range reasons {
			fmt.Fprintf(w, "  %6d  %s\n", snap.Failures[r], r)
		}
		fmt.Fprintln(w)
	}

	if len(s.Assertions) > 0 {
		fmt.Fprintln(w, p.Title.Sprint("Assertions:"))
		for _, a := range s.Assertions {
			mark := p.Success.Sprint("✓")
			if !a.Passed {
				mark = p.Error.Sprint("✗")
			}
			fmt.Fprintf(w, "  %s %s (actual: %s)\n", mark, a.Expression, a.Actual)
		}
		fmt.Fprintln(w)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func formatDurationShort(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return "0ms"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber adds thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if len(str) <= 3 {
		return str
	}
	var sb strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		sb.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(str[i : i+3])
	}
	return sb.String()
}
