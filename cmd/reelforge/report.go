package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"reelforge/internal/progress"
)

// tone classifies a value for color and marker choice.
type tone int

const (
	toneNeutral tone = iota
	toneGood
	toneBusy
	toneBad
)

func (t tone) marker() string {
	switch t {
	case toneGood:
		return "✓"
	case toneBusy:
		return "…"
	case toneBad:
		return "✗"
	default:
		return "·"
	}
}

func (t tone) colors() text.Colors {
	switch t {
	case toneGood:
		return text.Colors{text.FgGreen}
	case toneBusy:
		return text.Colors{text.FgYellow}
	case toneBad:
		return text.Colors{text.FgRed, text.Bold}
	default:
		return nil
	}
}

// statusTone maps job and step statuses onto tones.
func statusTone(status string) tone {
	switch status {
	case progress.StatusCompleted:
		return toneGood
	case progress.StatusRunning, "executing":
		return toneBusy
	case progress.StatusFailed:
		return toneBad
	default:
		return toneNeutral
	}
}

const fieldLabelWidth = 14

// report writes the human-readable output of status-style commands.
type report struct {
	out      io.Writer
	color    bool
	sections int
}

func newReport(out io.Writer) *report {
	return &report{out: out, color: wantsColor(out)}
}

// section starts a titled block, separated from the previous one by a blank line.
func (r *report) section(title string) {
	if r.sections > 0 {
		fmt.Fprintln(r.out)
	}
	r.sections++
	title = strings.TrimSpace(title)
	rule := strings.Repeat("─", utf8.RuneCountInString(title))
	if r.color {
		title = text.Bold.Sprint(title)
	}
	fmt.Fprintln(r.out, title)
	fmt.Fprintln(r.out, rule)
}

// field writes one labelled value. Empty values are skipped.
func (r *report) field(label, value string, t tone) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(r.out, "  %-*s %s\n", fieldLabelWidth, label, r.paint(t.marker()+" "+value, t))
}

func (r *report) paint(s string, t tone) string {
	if !r.color {
		return s
	}
	if colors := t.colors(); colors != nil {
		return colors.Sprint(s)
	}
	return s
}

// column describes one table column.
type column struct {
	title string
	align text.Align
}

// table writes rows under cols. Short rows are padded with blanks.
func (r *report) table(cols []column, rows [][]string) {
	if len(cols) == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Options.SeparateRows = false

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, col := range cols {
		header[i] = col.title
		configs[i] = table.ColumnConfig{Number: i + 1, Align: col.align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, values := range rows {
		row := make(table.Row, len(cols))
		for i := range cols {
			row[i] = ""
			if i < len(values) {
				row[i] = values[i]
			}
		}
		tw.AppendRow(row)
	}
	fmt.Fprintln(r.out, tw.Render())
}

// wantsColor reports whether out is an interactive terminal and NO_COLOR is unset.
func wantsColor(out io.Writer) bool {
	if _, disabled := os.LookupEnv("NO_COLOR"); disabled {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
