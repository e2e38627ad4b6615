// Package snapshot renders a lidar point set as a top-down scatter plot.
package snapshot

import (
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/go2ctl/go2ctl/internal/robot/lidar"
)

// ErrEmpty is returned when no point survives the range filter.
var ErrEmpty = errors.New("no points to plot")

// Options controls the rendered image.
type Options struct {
	Title string
	// Size is the edge length of the square image.
	Size vg.Length
	// MaxRange drops points whose horizontal distance from the robot is
	// larger. Zero keeps every point.
	MaxRange float64
	// Format is one of png, jpg, svg, pdf.
	Format string
}

var (
	pointColor = color.RGBA{R: 30, G: 110, B: 200, A: 255}
	robotColor = color.RGBA{R: 220, G: 40, B: 40, A: 255}
)

// FormatFor picks the image format from a file name, defaulting to png.
func FormatFor(path string) string {
	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "jpg", "jpeg", "svg", "pdf", "png":
		return ext
	default:
		return "png"
	}
}

// Project flattens points onto the ground plane.
func Project(points []lidar.Point, maxRange float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(points))
	for _, p := range points {
		if maxRange > 0 && math.Hypot(p.X, p.Y) > maxRange {
			continue
		}
		xys = append(xys, plotter.XY{X: p.X, Y: p.Y})
	}
	return xys
}

// Render writes a top-down plot of points to w with the robot at the
// origin.
func Render(w io.Writer, points []lidar.Point, opts Options) error {
	if opts.Size <= 0 {
		opts.Size = 6 * vg.Inch
	}
	if opts.Format == "" {
		opts.Format = "png"
	}

	xys := Project(points, opts.MaxRange)
	if len(xys) == 0 {
		return ErrEmpty
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	cloud, err := plotter.NewScatter(xys)
	if err != nil {
		return errors.Wrap(err, "failed to build point scatter")
	}
	cloud.GlyphStyle.Color = pointColor
	cloud.GlyphStyle.Radius = vg.Points(0.6)
	cloud.GlyphStyle.Shape = draw.CircleGlyph{}
	p.Add(cloud)

	robot, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return errors.Wrap(err, "failed to build robot marker")
	}
	robot.GlyphStyle.Color = robotColor
	robot.GlyphStyle.Radius = vg.Points(4)
	robot.GlyphStyle.Shape = draw.PyramidGlyph{}
	p.Add(robot)
	p.Legend.Add("robot", robot)

	wt, err := p.WriterTo(opts.Size, opts.Size, opts.Format)
	if err != nil {
		return errors.Wrapf(err, "unsupported image format %q", opts.Format)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return errors.Wrap(err, "failed to write image")
	}
	return nil
}
