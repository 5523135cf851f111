package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// UI prints human-readable output. In JSON mode every method is silent so
// stdout carries only the JSON document.
type UI struct {
	out      io.Writer
	progress *mpb.Progress
	noColor  bool
	jsonMode bool
}

// NewUI creates a UI writing to stdout.
func NewUI(jsonMode, noColor bool) *UI {
	return newUIWithWriter(os.Stdout, jsonMode, noColor)
}

func newUIWithWriter(out io.Writer, jsonMode, noColor bool) *UI {
	return &UI{out: out, noColor: noColor, jsonMode: jsonMode}
}

// Close waits for running progress bars.
func (ui *UI) Close() {
	if ui.progress == nil {
		return
	}
	// Piped output cannot render bars and Wait may block on them.
	if IsTerminal() {
		ui.progress.Wait()
	} else {
		ui.progress.Shutdown()
	}
	ui.progress = nil
}

func (ui *UI) printf(attr color.Attribute, symbol, format string, args ...any) {
	if ui.jsonMode {
		return
	}
	c := color.New(attr)
	if ui.noColor {
		c.DisableColor()
	}
	c.Fprintf(ui.out, "%s %s\n", symbol, fmt.Sprintf(format, args...))
}

func (ui *UI) Success(format string, args ...any) { ui.printf(color.FgGreen, "✓", format, args...) }
func (ui *UI) Error(format string, args ...any)   { ui.printf(color.FgRed, "✗", format, args...) }
func (ui *UI) Warning(format string, args ...any) { ui.printf(color.FgYellow, "⚠", format, args...) }
func (ui *UI) Info(format string, args ...any)    { ui.printf(color.FgCyan, "ℹ", format, args...) }
func (ui *UI) Step(format string, args ...any)    { ui.printf(color.FgBlue, "→", format, args...) }

// ProgressBar adds a counting bar. It returns nil in JSON mode.
func (ui *UI) ProgressBar(name string, total int64) *mpb.Bar {
	if ui.jsonMode {
		return nil
	}
	if ui.progress == nil {
		ui.progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	}

	return ui.progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.OnComplete(
				decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
				" done",
			),
		),
	)
}

// Table prints rows under headers with box-drawing borders.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}

	vertical, horizontal := "│", "─"
	corners := [3][3]string{{"┌", "┬", "┐"}, {"├", "┼", "┤"}, {"└", "┴", "┘"}}
	if ui.noColor {
		vertical, horizontal = "|", "-"
		corners = [3][3]string{{"+", "+", "+"}, {"+", "+", "+"}, {"+", "+", "+"}}
	}
	border := color.New(color.FgCyan, color.Bold)
	if ui.noColor {
		border.DisableColor()
	}

	rule := func(c [3]string) {
		var b strings.Builder
		b.WriteString(c[0])
		for i, w := range widths {
			b.WriteString(strings.Repeat(horizontal, w+2))
			if i < len(widths)-1 {
				b.WriteString(c[1])
			}
		}
		b.WriteString(c[2])
		border.Fprintln(ui.out, b.String())
	}
	line := func(cells []string) {
		var b strings.Builder
		b.WriteString(vertical)
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + strings.Repeat(" ", w-len([]rune(cell))) + " " + vertical)
		}
		fmt.Fprintln(ui.out, b.String())
	}

	rule(corners[0])
	line(headers)
	rule(corners[1])
	for _, row := range rows {
		line(row)
	}
	rule(corners[2])
}

// Section prints a section header.
func (ui *UI) Section(title string) {
	if ui.jsonMode {
		return
	}
	c := color.New(color.FgMagenta, color.Bold)
	if ui.noColor {
		c.DisableColor()
	}
	fmt.Fprintln(ui.out)
	c.Fprintf(ui.out, "━━━ %s ━━━\n", strings.ToUpper(title))
	fmt.Fprintln(ui.out)
}

// KeyValue prints an indented key-value pair.
func (ui *UI) KeyValue(key string, value any) {
	if ui.jsonMode {
		return
	}
	c := color.New(color.FgYellow)
	if ui.noColor {
		c.DisableColor()
	}
	c.Fprintf(ui.out, "  %s: ", key)
	fmt.Fprintf(ui.out, "%v\n", value)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
