package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/pkpdsim/internal/inference"
	"github.com/san-kum/pkpdsim/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
)

func renderInfo(m *model.MultiOutputModel) string {
	def := m.Definition()
	var b strings.Builder

	b.WriteString(titleStyle.Render(def.Name) + "\n")
	if def.Description != "" {
		b.WriteString(dimStyle.Render(def.Description) + "\n")
	}
	b.WriteString(dimStyle.Render(def.Source()) + "\n\n")

	section := func(name string, items []string) {
		b.WriteString(labelStyle.Render(name) + "\n")
		for _, item := range items {
			b.WriteString("  " + item + "\n")
		}
	}

	section("outputs", m.OutputNames())

	layout := m.Layout()
	defaults := m.DefaultParameters()
	rows := make([]string, layout.Len())
	for i, name := range layout.Names() {
		kind := "parameter"
		if i < len(layout.States) {
			kind = "initial"
		}
		rows[i] = fmt.Sprintf("[%d] %-32s %s %s", i, name, valueStyle.Render(fmt.Sprintf("%g", defaults[i])), dimStyle.Render(kind))
	}
	section(fmt.Sprintf("fit vector (%d entries)", m.NParameters()), rows)

	if len(def.Protocol) > 0 {
		doses := make([]string, len(def.Protocol))
		for i, d := range def.Protocol {
			kind := "bolus"
			if d.Duration > 0 {
				kind = fmt.Sprintf("infusion over %g", d.Duration)
			}
			doses[i] = fmt.Sprintf("%g into %s at t=%g (%s)", d.Amount, d.Compartment, d.Time, kind)
			if d.Period > 0 {
				doses[i] += fmt.Sprintf(", every %g x%d", d.Period, d.Count)
			}
		}
		section("protocol", doses)
	}

	return b.String()
}

func renderFit(m *model.MultiOutputModel, est *inference.Estimate) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("fit "+m.Name()) + "\n")
	fmt.Fprintf(&b, "%s %s / %s\n", labelStyle.Render("method"), est.Optimiser, est.Objective)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("score "), goodStyle.Render(fmt.Sprintf("%.6g", est.Score)))
	fmt.Fprintf(&b, "%s %d evaluations, %d iterations, %s in %v\n",
		labelStyle.Render("run   "), est.Evaluations, est.Iterations, est.Status, est.Elapsed.Round(time.Millisecond))

	b.WriteString(labelStyle.Render("estimate") + "\n")
	for i, name := range m.Layout().Names() {
		fmt.Fprintf(&b, "  %-32s %s\n", name, valueStyle.Render(fmt.Sprintf("%.6g", est.Parameters[i])))
	}
	return b.String()
}
