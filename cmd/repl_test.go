package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go2ctl/go2ctl/internal/robot/catalog"
)

func TestMenuNames(t *testing.T) {
	cat := catalog.Default()
	for _, name := range shortcutNames {
		_, ok := cat.Lookup(name)
		assert.True(t, ok, "shortcut %s missing from catalog", name)
	}

	menu := menuNames(cat.Entries())
	require.NotEmpty(t, menu)
	assert.Equal(t, "damp", menu[0])
	for _, name := range shortcutNames[1:] {
		assert.NotContains(t, menu, name)
	}

	tests := []struct {
		line string
		want string
	}{
		{"5", "damp"},
		{"12", "move"},
		{"20", "hello"},
		{"21", "stretch"},
		{"23", "continuous_gait"},
		{"26", "dance1"},
		{"34", "front_flip"},
	}
	for _, tt := range tests {
		in, err := parseLine(tt.line, menu)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, in.Command.Name, tt.line)
	}

	_, err := parseLine("22", menu)
	assert.ErrorContains(t, err, "not available")
}

func TestPrintMenuSkipsEmptySlot(t *testing.T) {
	var buf bytes.Buffer
	printMenu(&buf, []string{"damp", "", "stop"})

	out := buf.String()
	assert.Contains(t, out, "5 damp")
	assert.Contains(t, out, "7 stop")
	assert.NotContains(t, out, "6 ")
}

func TestParseLineShortcuts(t *testing.T) {
	menu := []string{"damp", "balance_stand", "stop"}

	tests := []struct {
		line string
		want string
	}{
		{"0", "hello"},
		{"1", "move_forward"},
		{"2", "move_backward"},
		{"3", "move_left"},
		{"4", "move_right"},
		{"5", "damp"},
		{" 7 ", "stop"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			in, err := parseLine(tt.line, menu)
			require.NoError(t, err)
			assert.Equal(t, actCommand, in.Action)
			assert.Equal(t, tt.want, in.Command.Name)
			assert.Empty(t, in.Command.Parameters)
		})
	}

	for _, line := range []string{"8", "-1", "1 x=2"} {
		_, err := parseLine(line, menu)
		assert.Error(t, err, line)
	}
}

func TestParseLineNamedCommand(t *testing.T) {
	in, err := parseLine("move x=0.3 y=-0.1 z=0", nil)
	require.NoError(t, err)
	assert.Equal(t, actCommand, in.Action)
	assert.Equal(t, "move", in.Command.Name)
	assert.Equal(t, map[string]any{"x": 0.3, "y": -0.1, "z": 0.0}, in.Command.Parameters)

	in, err = parseLine("handstand data=false", nil)
	require.NoError(t, err)
	assert.Equal(t, false, in.Command.Parameters["data"])

	in, err = parseLine("custom mode=walk", nil)
	require.NoError(t, err)
	assert.Equal(t, "walk", in.Command.Parameters["mode"])

	_, err = parseLine("move x", nil)
	assert.Error(t, err)
	_, err = parseLine("move =1", nil)
	assert.Error(t, err)
}

func TestParseLineBuiltins(t *testing.T) {
	tests := []struct {
		line   string
		action replAction
		enable bool
	}{
		{"", actNone, false},
		{"   ", actNone, false},
		{"quit", actQuit, false},
		{"EXIT", actQuit, false},
		{"help", actHelp, false},
		{"video on", actVideo, true},
		{"video off", actVideo, false},
		{"lidar on", actLidar, true},
		{"lidar disable", actLidar, false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			in, err := parseLine(tt.line, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.action, in.Action)
			assert.Equal(t, tt.enable, in.Enable)
		})
	}

	_, err := parseLine("video", nil)
	assert.Error(t, err)
	_, err = parseLine("lidar maybe", nil)
	assert.Error(t, err)
}

func TestPrintMenu(t *testing.T) {
	var buf bytes.Buffer
	printMenu(&buf, []string{"damp", "stop"})

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "move_right")
	assert.Contains(t, out, "5 damp")
	assert.Contains(t, out, "6 stop")
}
