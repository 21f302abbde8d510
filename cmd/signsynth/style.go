package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/normanking/signsynth/internal/signer"
)

// styles render CLI output. Colors drop out when out is not a terminal.
type styles struct {
	clock  lipgloss.Style
	status lipgloss.Style
	done   lipgloss.Style
	warn   lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		clock:  r.NewStyle().Foreground(lipgloss.Color("241")),
		status: r.NewStyle().Foreground(lipgloss.Color("75")),
		done:   r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

func (s styles) statusLine(status string) string {
	switch status {
	case signer.StatusComplete:
		return s.done.Render(status)
	case signer.StatusNoSigns:
		return s.warn.Render(status)
	default:
		return s.status.Render(status)
	}
}
