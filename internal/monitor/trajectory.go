package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/bodyviewer/internal/db"
	"github.com/banshee-data/bodyviewer/internal/security"
)

// TrajectoryPlot describes one joint trajectory to draw.
type TrajectoryPlot struct {
	Title  string
	Points []db.TrajectoryPoint
}

var trajectoryColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}

// SaveTrajectoryPlots writes two images into outputDir: a top-down view of
// the joint's path (x against depth) and its height over time. It returns
// the paths written. prefix is reduced to a safe file name.
func SaveTrajectoryPlots(tp TrajectoryPlot, outputDir, prefix string) ([]string, error) {
	if len(tp.Points) == 0 {
		return nil, errors.New("no trajectory points to plot")
	}

	topPts := make(plotter.XYs, len(tp.Points))
	heightPts := make(plotter.XYs, len(tp.Points))
	for i, p := range tp.Points {
		topPts[i] = plotter.XY{X: float64(p.Position.X), Y: float64(p.Position.Z)}
		// Camera y points down.
		heightPts[i] = plotter.XY{X: p.Timestamp.Seconds(), Y: -float64(p.Position.Y)}
	}

	pTop := plot.New()
	pTop.Title.Text = fmt.Sprintf("%s - Top View", tp.Title)
	pTop.X.Label.Text = "X (mm)"
	pTop.Y.Label.Text = "Depth (mm)"

	pHeight := plot.New()
	pHeight.Title.Text = fmt.Sprintf("%s - Height", tp.Title)
	pHeight.X.Label.Text = "Time (s)"
	pHeight.Y.Label.Text = "Height above camera (mm)"

	topLine, err := plotter.NewLine(topPts)
	if err != nil {
		return nil, err
	}
	topLine.Color = trajectoryColor
	topLine.Width = vg.Points(1)
	pTop.Add(topLine, plotter.NewGrid())

	start, err := plotter.NewScatter(topPts[:1])
	if err != nil {
		return nil, err
	}
	start.Color = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	start.Radius = vg.Points(4)
	pTop.Add(start)
	pTop.Legend.Add("start", start)
	pTop.Legend.Top = true

	heightLine, err := plotter.NewLine(heightPts)
	if err != nil {
		return nil, err
	}
	heightLine.Color = trajectoryColor
	heightLine.Width = vg.Points(1)
	pHeight.Add(heightLine, plotter.NewGrid())

	prefix = security.SanitizeFilename(prefix)
	topFile := filepath.Join(outputDir, prefix+"_top.png")
	if err := pTop.Save(8*vg.Inch, 8*vg.Inch, topFile); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", topFile, err)
	}
	heightFile := filepath.Join(outputDir, prefix+"_height.png")
	if err := pHeight.Save(14*vg.Inch, 6*vg.Inch, heightFile); err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", heightFile, err)
	}
	return []string{topFile, heightFile}, nil
}
