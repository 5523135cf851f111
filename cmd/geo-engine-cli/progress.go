package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
)

// importBar tracks records written by the import command.
type importBar struct {
	bar *progressbar.ProgressBar
}

func newImportBar(total int, description string, w io.Writer) *importBar {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
	return &importBar{bar: bar}
}

func (b *importBar) Add(n int) {
	if b != nil {
		_ = b.bar.Add(n)
	}
}

func (b *importBar) Finish() {
	if b != nil {
		_ = b.bar.Finish()
	}
}

// querySpinner shows activity while a query runs. A nil spinner is a no-op
// so JSON mode can skip it.
type querySpinner struct {
	s *spinner.Spinner
}

func newQuerySpinner(message string) *querySpinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = os.Stderr
	return &querySpinner{s: s}
}

func (q *querySpinner) Start() {
	if q != nil {
		q.s.Start()
	}
}

func (q *querySpinner) Stop() {
	if q != nil {
		q.s.Stop()
	}
}
