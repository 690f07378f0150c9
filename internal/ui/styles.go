package ui

import (
	"fmt"

	"github.com/alfredjeanlab/harvest/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorCmd     = 250 // light gray
	colorMuted   = 245 // medium gray
	colorOK      = 114 // green
	colorFail    = 167 // red
	colorRunning = 179 // yellow
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderStatus colors a run status: green when completed, red when failed,
// yellow while running. All three codes have the same width so columns
// stay aligned.
func RenderStatus(s model.RunStatus) string {
	switch s {
	case model.RunStatusCompleted:
		return render(colorOK, string(s))
	case model.RunStatusFailed:
		return render(colorFail, string(s))
	default:
		return render(colorRunning, string(s))
	}
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
