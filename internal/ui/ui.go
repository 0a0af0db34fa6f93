package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/dgketchum/Landsat578/internal/metadata"
	"github.com/dgketchum/Landsat578/internal/retrieval"
	"github.com/fatih/color"
)

// Output receives everything printed by this package.
var Output io.Writer = color.Output

var (
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	blue   = color.New(color.FgBlue)
	cyan   = color.New(color.FgCyan)
)

// PrintBanner prints the program name in large letters.
func PrintBanner() {
	cyan.Fprintln(Output, figure.NewFigure("Landsat", "isometric1", true).String())
	fmt.Fprintln(Output)
}

// PrintWarning displays a warning message with consistent formatting
func PrintWarning(message string) {
	yellow.Fprintln(Output, "Warning:")
	yellow.Fprintln(Output, message)
}

// PrintError displays an error message with consistent formatting
func PrintError(message string) {
	red.Fprintf(Output, "\nError: %s\n", message)
}

// PrintSuccess displays a success message with consistent formatting
func PrintSuccess(message string) {
	green.Fprintf(Output, "\n%s\n", message)
}

func PrintInfo(message string) {
	blue.Fprintln(Output, message)
}

func PrintTiles(sensor landsat.Sensor, tiles []landsat.PathRow) {
	green.Fprintf(Output, "%s tiles:\n", sensor)
	for _, pr := range tiles {
		green.Fprintf(Output, "- path %d row %d\n", pr.Path, pr.Row)
	}
}

// PrintScenes lists scenes one per line, colouring those under the ceiling.
func PrintScenes(scenes []landsat.SceneRecord, ceiling float64) {
	if len(scenes) == 0 {
		PrintWarning("No scenes match the query.")
		return
	}
	for _, s := range scenes {
		cloud := "   n/a"
		if s.CloudCover != nil {
			cloud = fmt.Sprintf("%5.1f%%", *s.CloudCover)
		}
		c := yellow
		if s.CloudBelow(ceiling) {
			c = green
		}
		c.Fprintf(Output, "%s  %s  %03d/%03d  cloud %s\n", s.SceneID, s.Date(), s.Tile.Path, s.Tile.Row, cloud)
	}
}

// PrintOutcomes shows each scene's outcome followed by the batch totals.
func PrintOutcomes(outcomes []retrieval.Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case retrieval.StatusDelivered:
			green.Fprintf(Output, "delivered        %s -> %s\n", o.Scene.SceneID, o.Destination)
		case retrieval.StatusAlreadyPresent:
			blue.Fprintf(Output, "already present  %s -> %s\n", o.Scene.SceneID, o.Destination)
		default:
			red.Fprintf(Output, "failed           %s: %s\n", o.Scene.SceneID, o.Reason)
		}
	}
	s := retrieval.Summarize(outcomes)
	summary := fmt.Sprintf("%d delivered, %d already present, %d failed", s.Delivered, s.AlreadyPresent, s.Failed)
	if s.Failed > 0 {
		PrintWarning(summary)
		return
	}
	PrintSuccess(summary)
}

// PrintStatus shows each sensor's snapshot and its age.
func PrintStatus(statuses []metadata.Status, now time.Time) {
	width := 0
	for _, st := range statuses {
		width = max(width, len(st.Sensor))
	}
	for _, st := range statuses {
		name := string(st.Sensor) + strings.Repeat(" ", width-len(st.Sensor))
		switch {
		case !st.Present:
			yellow.Fprintf(Output, "%s  no snapshot\n", name)
		case st.Manifest == nil:
			blue.Fprintf(Output, "%s  snapshot present\n", name)
		default:
			age := now.Sub(st.Manifest.RefreshedAt).Truncate(time.Minute)
			green.Fprintf(Output, "%s  %d scenes, refreshed %s (%s ago)\n",
				name, st.Manifest.Rows, st.Manifest.RefreshedAt.Format(time.RFC3339), age)
		}
	}
}
