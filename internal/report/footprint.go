package report

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/dgketchum/Landsat578/internal/landsat"
	"github.com/fogleman/gg"
	"github.com/paulmach/orb"
)

var tilePalette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

const (
	mapSize      = 800
	margin       = 40
	legendHeight = 24
)

// DrawFootprints renders tile outlines and query points to a PNG at path.
func DrawFootprints(path string, tiles map[landsat.PathRow]orb.MultiPolygon, points []landsat.Point) error {
	if len(tiles) == 0 && len(points) == 0 {
		return fmt.Errorf("nothing to draw")
	}

	var bound orb.Bound
	first := true
	extend := func(p orb.Point) {
		if first {
			bound = orb.Bound{Min: p, Max: p}
			first = false
			return
		}
		bound = bound.Extend(p)
	}
	for _, mp := range tiles {
		for _, p := range collect(mp) {
			extend(p)
		}
	}
	for _, p := range points {
		extend(orb.Point{p.Lon, p.Lat})
	}

	keys := make([]landsat.PathRow, 0, len(tiles))
	for pr := range tiles {
		keys = append(keys, pr)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	spanX := math.Max(bound.Max[0]-bound.Min[0], 1e-6)
	spanY := math.Max(bound.Max[1]-bound.Min[1], 1e-6)
	scale := float64(mapSize-2*margin) / math.Max(spanX, spanY)
	height := int(spanY*scale) + 2*margin + legendHeight*len(keys)
	width := int(spanX*scale) + 2*margin
	project := func(p orb.Point) (float64, float64) {
		return margin + (p[0]-bound.Min[0])*scale, margin + (bound.Max[1]-p[1])*scale
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	for i, pr := range keys {
		c := tilePalette[i%len(tilePalette)]
		for _, poly := range tiles[pr] {
			for _, ring := range poly {
				for j, p := range ring {
					x, y := project(p)
					if j == 0 {
						dc.MoveTo(x, y)
					} else {
						dc.LineTo(x, y)
					}
				}
				dc.ClosePath()
			}
		}
		dc.SetRGBA255(int(c.R), int(c.G), int(c.B), 60)
		dc.FillPreserve()
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.SetLineWidth(2)
		dc.Stroke()
	}

	dc.SetRGB(0, 0, 0)
	for _, p := range points {
		x, y := project(orb.Point{p.Lon, p.Lat})
		dc.DrawCircle(x, y, 4)
		dc.Fill()
	}

	legendY := float64(height - legendHeight*len(keys))
	for i, pr := range keys {
		c := tilePalette[i%len(tilePalette)]
		y := legendY + float64(i*legendHeight)
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawRectangle(margin, y, 15, 15)
		dc.Fill()
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored("path/row "+pr.String(), margin+20, y+7, 0, 0.5)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save footprint image: %w", err)
	}
	return nil
}

func collect(mp orb.MultiPolygon) []orb.Point {
	var out []orb.Point
	for _, poly := range mp {
		for _, ring := range poly {
			out = append(out, ring...)
		}
	}
	return out
}
