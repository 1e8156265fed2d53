package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"

	"ytreport/internal/api"
	"ytreport/internal/preflight"
	"ytreport/internal/workflow"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// statusLines renders daemon status. A nil status means the API did not answer.
func statusLines(status *api.DaemonStatus, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status == nil {
		return append(lines, renderStatusLine("ytreport", statusError, "Not running", colorize))
	}

	daemonKind, daemonMsg := statusOK, fmt.Sprintf("Running (pid %d)", status.PID)
	if !status.Running {
		daemonKind, daemonMsg = statusWarn, "API up, workers stopped"
	}
	lines = append(lines,
		renderStatusLine("ytreport", daemonKind, daemonMsg, colorize),
		renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d (%d active runs)", status.Workflow.Workers, len(status.Workflow.ActiveRuns)), colorize),
		renderStatusLine("Runs", statusInfo, runStatsSummary(status.Workflow.RunStats), colorize),
	)
	if status.Workflow.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
	}

	db := status.Database
	switch {
	case db.Error != "":
		lines = append(lines, renderStatusLine("Database", statusError, db.Error, colorize))
	case len(db.MissingTables) > 0:
		lines = append(lines, renderStatusLine("Database", statusError, "missing tables: "+strings.Join(db.MissingTables, ", "), colorize))
	case !db.Integrity:
		lines = append(lines, renderStatusLine("Database", statusWarn, "integrity check failed", colorize))
	default:
		lines = append(lines, renderStatusLine("Database", statusOK, fmt.Sprintf("%s (schema v%d)", db.Path, db.SchemaVersion), colorize))
	}

	if len(status.Workflow.StageHealth) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Stages", colorize)...)
		for _, h := range status.Workflow.StageHealth {
			if h.Ready {
				lines = append(lines, renderStatusLine(h.Name, statusOK, "Ready", colorize))
				continue
			}
			lines = append(lines, renderStatusLine(h.Name, statusError, h.Detail, colorize))
		}
	}
	return lines
}

func runStatsSummary(stats map[string]int) string {
	if len(stats) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(stats))
	for _, status := range workflow.AllRunStatuses() {
		if n := stats[string(status)]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", status, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func checkLines(results []preflight.Result, colorize bool) []string {
	lines := renderSectionHeader("Dependencies", colorize)
	ordered := slices.Clone(results)
	for _, r := range ordered {
		kind := statusOK
		if !r.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return lines
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
