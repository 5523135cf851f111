package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spherical-ai/spherical/libs/geo-engine/internal/engine"
)

type queryEngine interface {
	ProcessQuery(ctx context.Context, text string) *engine.QueryResult
	ValidateQuery(text string) engine.Validation
	GetSuggestions(partial string) []string
	GetStats(ctx context.Context) engine.Stats
}

const replHelp = `Type a question, or one of:
  :validate <query>   check a query without running it
  :suggest <text>     list example queries
  :stats              engine counters
  :help               this message
  :quit               exit`

// runREPL reads queries line by line until EOF or :quit.
func runREPL(ctx context.Context, in io.Reader, ui *UI, eng queryEngine) error {
	scanner := bufio.NewScanner(in)
	prompt := func() {
		if !ui.jsonMode {
			fmt.Fprint(ui.out, "geo> ")
		}
	}

	prompt()
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			prompt()
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case ":quit", ":q", ":exit":
			return nil
		case ":help":
			fmt.Fprintln(ui.out, replHelp)
		case ":stats":
			stats := eng.GetStats(ctx)
			if err := emit(ui, stats, func() { renderStats(ui, stats) }); err != nil {
				return err
			}
		case ":suggest":
			suggestions := eng.GetSuggestions(arg)
			if err := emit(ui, suggestions, func() { renderSuggestions(ui, suggestions) }); err != nil {
				return err
			}
		case ":validate":
			v := eng.ValidateQuery(arg)
			if err := emit(ui, v, func() { renderValidation(ui, v) }); err != nil {
				return err
			}
		default:
			if strings.HasPrefix(cmd, ":") {
				ui.Warning("unknown command %s, try :help", cmd)
				break
			}
			res := eng.ProcessQuery(ctx, line)
			if err := emit(ui, res, func() { renderResult(ui, res) }); err != nil {
				return err
			}
		}
		prompt()
	}
	return scanner.Err()
}

// emit writes v as JSON in JSON mode and calls render otherwise.
func emit(ui *UI, v any, render func()) error {
	if ui.jsonMode {
		return writeJSON(ui.out, v)
	}
	render()
	return nil
}

func renderSuggestions(ui *UI, suggestions []string) {
	if len(suggestions) == 0 {
		ui.Info("no suggestions")
		return
	}
	for _, s := range suggestions {
		ui.Step("%s", s)
	}
}

func renderValidation(ui *UI, v engine.Validation) {
	if v.IsValid {
		ui.Success("query is valid")
		return
	}
	for _, issue := range v.Issues {
		ui.Error("%s", issue)
	}
}
