package snapshot

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/plotter"

	"github.com/go2ctl/go2ctl/internal/robot/lidar"
)

func TestProject(t *testing.T) {
	points := []lidar.Point{
		{X: 1, Y: 2, Z: 0.3},
		{X: 30, Y: 40, Z: 1},
		{X: -3, Y: 4, Z: -0.2},
	}

	want := plotter.XYs{{X: 1, Y: 2}, {X: -3, Y: 4}}
	if diff := cmp.Diff(want, Project(points, 5)); diff != "" {
		t.Errorf("Project() mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, Project(points, 0), 3)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, "png", FormatFor("scan.png"))
	assert.Equal(t, "svg", FormatFor("/tmp/scan.SVG"))
	assert.Equal(t, "pdf", FormatFor("scan.pdf"))
	assert.Equal(t, "png", FormatFor("scan"))
	assert.Equal(t, "png", FormatFor("scan.bmp"))
}

func TestRenderPNG(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, []lidar.Point{{X: 1, Y: 1}, {X: -2, Y: 0.5}, {X: 0.3, Y: -1.2}}, Options{Title: "scan 1"})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")))
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, []lidar.Point{{X: 100, Y: 0}}, Options{MaxRange: 10})
	assert.ErrorIs(t, err, ErrEmpty)
	assert.Zero(t, buf.Len())

	assert.Error(t, Render(&buf, []lidar.Point{{X: 1}}, Options{Format: "bmp"}))
}
