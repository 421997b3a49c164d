package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/freeeve/secgame/api/internal/config"
	"github.com/freeeve/secgame/api/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF00FF")).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Width(18)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	winnerStyle = cellStyle.
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
)

// render formats an analysis for the terminal.
func render(p *config.Project, a *model.Analysis) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", p.Name, p.Domain)))
	b.WriteString("\n")

	if a.Status != model.StatusCompleted || a.Result == nil {
		msg := string(a.Status)
		if a.Error != "" {
			msg += ": " + a.Error
		}
		b.WriteString(errorStyle.Render(msg))
		return b.String()
	}

	res := a.Result
	rule := res.Rule
	if rule == "hurwicz" {
		rule += " α=" + strconv.FormatFloat(res.Alpha, 'g', -1, 64)
	}
	for _, kv := range [][2]string{
		{"Mode", res.Mode},
		{"Rule", rule},
		{"Seed", strconv.FormatInt(res.Seed, 10)},
		{"Techniques", fmt.Sprintf("%d (%s strategies)", res.Techniques, res.AttackerSpace)},
		{"Mitigations", fmt.Sprintf("%d (%s strategies)", res.Mitigations, res.DefenderSpace)},
		{"Observations", strconv.Itoa(res.Observations)},
	} {
		b.WriteString(labelStyle.Render(kv[0]) + kv[1] + "\n")
	}
	b.WriteString("\n")
	b.WriteString(rankingTable(res).Render())
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render("Recommended measures"))
	b.WriteString("\n")
	b.WriteString(measureTable(res.Recommended).Render())
	return b.String()
}

func rankingTable(res *model.Result) *table.Table {
	rows := make([][]string, len(res.Top))
	for i, r := range res.Top {
		ids := make([]string, len(r.Measures))
		for j, m := range r.Measures {
			ids[j] = m.ID
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(r.Arm),
			strconv.FormatFloat(r.Value, 'f', 2, 64),
			strconv.Itoa(r.Samples),
			strings.Join(ids, ", "),
		}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#00FFFF"))).
		Headers("#", "ARM", "VALUE", "SAMPLES", "MEASURES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == 0:
				return winnerStyle
			}
			return cellStyle
		})
}

func measureTable(rec model.Recommendation) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "PRICE", "LOSS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, m := range rec.Measures {
		t.Row(m.ID, m.Name,
			strconv.FormatFloat(m.Price, 'f', 2, 64),
			fmt.Sprintf("[%g, %g]", m.LossMin, m.LossMax))
	}
	return t
}
