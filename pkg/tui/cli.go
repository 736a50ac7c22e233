// Package tui renders command output. Simple streaming text, no
// full-screen TUI - just clean prompts, tables and summaries.
package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lakeseed/lakeseed/pkg/cursor"
	"github.com/lakeseed/lakeseed/pkg/demo"
	"github.com/lakeseed/lakeseed/pkg/ingest"
	"github.com/lakeseed/lakeseed/pkg/inspect"
	"github.com/lakeseed/lakeseed/pkg/lakehouse"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

// Printer writes styled command output.
type Printer struct {
	out io.Writer
}

// NewPrinter renders to w, or stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w}
}

// Header prints the tool banner.
func (p *Printer) Header(version string) {
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, titleStyle.Render("  LAKESEED")+mutedStyle.Render(" v"+version))
	fmt.Fprintln(p.out, mutedStyle.Render("  Lakehouse seeding and incremental ingestion"))
	fmt.Fprintln(p.out)
}

// Success prints a green check line.
func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.out, "  %s %s\n", successStyle.Render("✓"), msg)
}

// Failure prints a red cross line.
func (p *Printer) Failure(msg string) {
	fmt.Fprintf(p.out, "  %s %s\n", accentStyle.Render("✗"), msg)
}

// Info prints a muted line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.out, mutedStyle.Render("  "+msg))
}

// RunReport prints the outcome of one ingestion run.
func (p *Printer) RunReport(rep *ingest.Report) {
	fmt.Fprintln(p.out)
	switch {
	case rep.State == ingest.StateFailed:
		fmt.Fprintln(p.out, accentStyle.Render("  ✗ INGESTION FAILED"))
	case len(rep.Sheets) == 0:
		fmt.Fprintln(p.out, successStyle.Render("  ✓ NOTHING TO INGEST"))
	default:
		fmt.Fprintln(p.out, successStyle.Render("  ✓ INGESTION COMPLETE"))
	}
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Date: "), titleStyle.Render(cursor.FormatDate(rep.Date)))
	fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("State:"), titleStyle.Render(rep.State.String()))

	if len(rep.Sheets) > 0 {
		rows := make([][]string, 0, len(rep.Sheets))
		for _, s := range rep.Sheets {
			rows = append(rows, []string{
				s.Sheet,
				formatNumber(int64(s.Rows)),
				formatBytes(int64(s.Bytes)),
				s.Key,
			})
		}
		fmt.Fprintln(p.out)
		p.table([]string{"SHEET", "ROWS", "SIZE", "KEY"}, rows)
	}
	if len(rep.Skipped) > 0 {
		fmt.Fprintf(p.out, "\n  %s %s\n", mutedStyle.Render("Skipped:"), strings.Join(rep.Skipped, ", "))
	}

	fmt.Fprintln(p.out)
	if rep.CursorAdvanced {
		fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Cursor:"), successStyle.Render(cursor.FormatDate(rep.Date)))
	} else if rep.Explicit {
		fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Cursor:"), mutedStyle.Render("untouched (explicit date)"))
	} else {
		fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Cursor:"), mutedStyle.Render("not advanced"))
	}
	fmt.Fprintf(p.out, "  %s %s rows in %s\n",
		mutedStyle.Render("Total: "),
		titleStyle.Render(formatNumber(int64(rep.TotalRows))),
		formatDuration(rep.Duration()))
	fmt.Fprintln(p.out)
}

// Buckets prints one row per lakehouse bucket.
func (p *Printer) Buckets(infos []lakehouse.BucketInfo) {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.Bucket,
			formatNumber(int64(info.Objects)),
			formatBytes(info.TotalSize),
		})
	}
	fmt.Fprintln(p.out)
	p.table([]string{"BUCKET", "OBJECTS", "SIZE"}, rows)
	fmt.Fprintln(p.out)
}

// InspectSummary prints the schema and head preview of a parquet source.
func (p *Printer) InspectSummary(s *inspect.Summary) {
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Source:"), codeStyle.Render(s.Source))
	fmt.Fprintf(p.out, "  %s %s rows, %d columns\n",
		mutedStyle.Render("Shape: "),
		titleStyle.Render(formatNumber(s.Rows)),
		len(s.Columns))

	cols := make([][]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		cols = append(cols, []string{c.Name, c.Type})
	}
	fmt.Fprintln(p.out)
	p.table([]string{"COLUMN", "TYPE"}, cols)

	if len(s.Preview) > 0 {
		header := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			header[i] = c.Name
		}
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, mutedStyle.Render(fmt.Sprintf("  First %d rows:", len(s.Preview))))
		p.table(header, s.Preview)
	}
	fmt.Fprintln(p.out)
}

// DemoReport prints the outcome of a demo run: what landed in bronze,
// the readback proof, and the final bucket census.
func (p *Printer) DemoReport(res *demo.Result) {
	fmt.Fprintln(p.out)
	if res.SetupOnly {
		fmt.Fprintln(p.out, successStyle.Render("  ✓ LAKEHOUSE READY"))
		p.Buckets(res.Buckets)
		fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Done in"), formatDuration(res.Duration))
		fmt.Fprintln(p.out)
		return
	}

	fmt.Fprintln(p.out, successStyle.Render("  ✓ DEMO COMPLETE"))
	fmt.Fprintln(p.out)

	rows := make([][]string, 0, len(res.Uploads))
	for _, u := range res.Uploads {
		rows = append(rows, []string{
			u.Table,
			formatNumber(int64(u.Rows)),
			formatBytes(int64(u.Bytes)),
			u.Key,
		})
	}
	p.table([]string{"TABLE", "ROWS", "SIZE", "KEY"}, rows)

	if len(res.SampleKeys) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, mutedStyle.Render("  Bronze sample:"))
		for _, key := range res.SampleKeys {
			fmt.Fprintf(p.out, "    %s\n", key)
		}
	}

	if v := res.Verified; v != nil {
		fmt.Fprintln(p.out)
		fmt.Fprintf(p.out, "  %s %s\n", mutedStyle.Render("Verified:"), titleStyle.Render(v.Table))
		fmt.Fprintf(p.out, "  %s %s rows decoded from %s\n",
			mutedStyle.Render("Readback:"),
			titleStyle.Render(formatNumber(int64(v.Rows))),
			v.Key)
		if len(v.Head) > 0 {
			fmt.Fprintln(p.out)
			p.table(v.Columns, v.Head)
		}
	}

	p.Buckets(res.Buckets)
	fmt.Fprintf(p.out, "  %s %s rows in %s\n",
		mutedStyle.Render("Total:"),
		titleStyle.Render(formatNumber(int64(res.TotalRows()))),
		formatDuration(res.Duration))
	fmt.Fprintln(p.out)
}

// CursorStatus prints the stored cursor position.
func (p *Printer) CursorStatus(backend string, date time.Time) {
	fmt.Fprintf(p.out, "  %s %s %s\n",
		mutedStyle.Render("Cursor:"),
		titleStyle.Render(cursor.FormatDate(date)),
		mutedStyle.Render("("+backend+")"))
	fmt.Fprintf(p.out, "  %s %s\n",
		mutedStyle.Render("Next:  "),
		titleStyle.Render(cursor.FormatDate(date.AddDate(0, 0, 1))))
}

// table prints a padded column layout. Cells longer than 48 runes are
// truncated so key-heavy tables stay on one line.
func (p *Printer) table(header []string, rows [][]string) {
	const maxCell = 48
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	clip := func(s string) string {
		r := []rune(s)
		if len(r) > maxCell {
			return string(r[:maxCell-1]) + "…"
		}
		return s
	}
	clipped := make([][]string, len(rows))
	for r, row := range rows {
		clipped[r] = make([]string, 0, len(row))
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			cell = clip(cell)
			clipped[r] = append(clipped[r], cell)
			if n := len([]rune(cell)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	for i, h := range header {
		fmt.Fprintf(&b, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(p.out, mutedStyle.Render("  "+strings.TrimRight(b.String(), " ")))

	for _, row := range clipped {
		b.Reset()
		for i, cell := range row {
			pad := widths[i] - len([]rune(cell))
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", pad+2))
		}
		fmt.Fprintln(p.out, "  "+strings.TrimRight(b.String(), " "))
	}
}

// SetupAnswers holds the connection settings collected by the wizard.
type SetupAnswers struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bronze     string
	Silver     string
	Gold       string
	SourcePath string
}

// RunSetupWizard walks the operator through the object store settings.
// Defaults come from the current config; Enter keeps them. Returns nil
// without error when the operator declines the final confirmation.
func (p *Printer) RunSetupWizard(defaults SetupAnswers) (*SetupAnswers, error) {
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, accentStyle.Render("▸ OBJECT STORE"))
	fmt.Fprintln(p.out, mutedStyle.Render("  Press Enter to accept defaults:"))
	fmt.Fprintln(p.out)

	answers := defaults
	var err error
	if answers.Endpoint, err = p.promptWithDefault(reader, "endpoint", defaults.Endpoint); err != nil {
		return nil, err
	}
	if answers.AccessKey, err = p.promptWithDefault(reader, "access key", defaults.AccessKey); err != nil {
		return nil, err
	}
	if answers.SecretKey, err = p.promptWithDefault(reader, "secret key", defaults.SecretKey); err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, accentStyle.Render("▸ BUCKETS"))
	fmt.Fprintln(p.out)
	if answers.Bronze, err = p.promptWithDefault(reader, "bronze", defaults.Bronze); err != nil {
		return nil, err
	}
	if answers.Silver, err = p.promptWithDefault(reader, "silver", defaults.Silver); err != nil {
		return nil, err
	}
	if answers.Gold, err = p.promptWithDefault(reader, "gold", defaults.Gold); err != nil {
		return nil, err
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, accentStyle.Render("▸ SOURCE"))
	fmt.Fprintln(p.out)
	if answers.SourcePath, err = p.promptWithDefault(reader, "workbook", defaults.SourcePath); err != nil {
		return nil, err
	}
	answers.SourcePath = expandPath(answers.SourcePath)

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Fprintf(p.out, "  %s\n", titleStyle.Render("Ready to provision"))
	fmt.Fprintf(p.out, "  %s → %s, %s, %s\n", answers.Endpoint, answers.Bronze, answers.Silver, answers.Gold)
	fmt.Fprintln(p.out, mutedStyle.Render("  ─────────────────────────────────────"))
	fmt.Fprintln(p.out)

	confirm, err := p.promptConfirm(reader, "  Save and provision? [Y/n]: ")
	if err != nil {
		return nil, err
	}
	if !confirm {
		fmt.Fprintln(p.out, mutedStyle.Render("  Cancelled."))
		return nil, nil
	}
	return &answers, nil
}

func (p *Printer) promptWithDefault(reader *bufio.Reader, field, defaultVal string) (string, error) {
	fmt.Fprintf(p.out, "  %s %s: ", mutedStyle.Render(field), mutedStyle.Render("["+defaultVal+"]"))
	input, err := reader.ReadString('\n')
	if err != nil {
		return defaultVal, err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal, nil
	}
	return input, nil
}

func (p *Printer) promptConfirm(reader *bufio.Reader, prompt string) (bool, error) {
	fmt.Fprint(p.out, prompt)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "" || input == "y" || input == "yes", nil
}

// expandPath strips drag-and-drop quotes and expands a leading ~.
func expandPath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "\"'")
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
