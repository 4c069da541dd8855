// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package access

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/helixstack/helixctl/pkg/bootstrap/convergence"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	keyStyle   = lipgloss.NewStyle().Width(12)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// WriteReport prints the stage summary followed by the endpoints.
func WriteReport(w io.Writer, results convergence.Results, endpoints Endpoints) error {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Stages"))
	b.WriteString("\n")
	b.WriteString(StageTable(results))
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Endpoints"))
	b.WriteString("\n")
	if endpoints.Resolved {
		b.WriteString(line("frontend", endpoints.Frontend))
		b.WriteString(line("api", endpoints.API))
	} else {
		b.WriteString(line("frontend", warnStyle.Render("unresolved: "+endpoints.Reason)))
		b.WriteString(line("api", warnStyle.Render("unresolved")))
	}
	b.WriteString(line("datastore", endpoints.Datastore))
	_, err := io.WriteString(w, b.String())
	return err
}

func line(key, value string) string {
	return keyStyle.Render(key) + value + "\n"
}

// StageTable renders one row per stage: outcome, actions taken and duration.
func StageTable(results convergence.Results) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STAGE", "OUTCOME", "CREATED", "UPDATED", "UNCHANGED", "DURATION").
		StyleFunc(func(_, _ int) lipgloss.Style {
			return cellStyle
		})
	for _, r := range results {
		t.Row(
			string(r.Stage),
			outcome(r),
			fmt.Sprint(r.Count(convergence.Created)),
			fmt.Sprint(r.Count(convergence.Updated)),
			fmt.Sprint(r.Count(convergence.Unchanged)),
			r.Duration.Round(time.Millisecond).String(),
		)
	}
	return t.Render()
}

func outcome(r convergence.Result) string {
	switch r.Outcome {
	case convergence.Failed:
		return failStyle.Render(string(r.Outcome))
	case convergence.Succeeded:
		return okStyle.Render(string(r.Outcome))
	default:
		return string(r.Outcome)
	}
}
