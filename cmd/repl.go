package cmd

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"

	"github.com/go2ctl/go2ctl/internal/robot"
	"github.com/go2ctl/go2ctl/internal/robot/catalog"
	"github.com/go2ctl/go2ctl/internal/util"
)

type replAction int

const (
	actNone replAction = iota
	actQuit
	actHelp
	actCommand
	actVideo
	actLidar
)

type replInput struct {
	Action  replAction
	Command robot.Command
	Enable  bool
}

// shortcutNames are the fixed numeric shortcuts 0 to 4.
var shortcutNames = []string{"hello", "move_forward", "move_backward", "move_left", "move_right"}

// menuNames lists the commands reachable by number from 5 upwards. It
// follows the robot's sport table order, hello and move included, so the
// numbers match the robot's own command list. The directional move
// shortcuts are left out and trajectory_follow keeps an empty slot.
func menuNames(entries []catalog.Entry) []string {
	reserved := []int{catalog.APITrajectoryFollow}
	out := make([]string, 0, len(entries)+len(reserved))
	for _, e := range entries {
		if slices.Contains(shortcutNames[1:], e.Name) {
			continue
		}
		if len(reserved) > 0 && e.Topic == catalog.TopicSport && e.APIID > reserved[0] {
			out = append(out, "")
			reserved = reserved[1:]
		}
		out = append(out, e.Name)
	}
	return out
}

// parseLine reads one REPL line. A line is a number, a command name
// followed by key=value parameters, or one of the built-in words.
func parseLine(line string, menu []string) (replInput, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return replInput{Action: actNone}, nil
	}

	head := strings.ToLower(fields[0])
	switch head {
	case "quit", "exit", "q":
		return replInput{Action: actQuit}, nil
	case "help", "?":
		return replInput{Action: actHelp}, nil
	case "video", "lidar":
		if len(fields) != 2 {
			return replInput{}, errors.Errorf("usage: %s on|off", head)
		}
		on, err := parseSwitch(fields[1])
		if err != nil {
			return replInput{}, err
		}
		act := actVideo
		if head == "lidar" {
			act = actLidar
		}
		return replInput{Action: act, Enable: on}, nil
	}

	if n, err := strconv.Atoi(head); err == nil {
		if len(fields) > 1 {
			return replInput{}, errors.New("numeric shortcuts take no parameters")
		}
		name, err := shortcut(n, menu)
		if err != nil {
			return replInput{}, err
		}
		return replInput{Action: actCommand, Command: robot.NewCommand(name)}, nil
	}

	cmd := robot.NewCommand(fields[0])
	for _, kv := range fields[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return replInput{}, errors.Errorf("bad parameter %q, want key=value", kv)
		}
		cmd = cmd.With(key, parseValue(value))
	}
	return replInput{Action: actCommand, Command: cmd}, nil
}

func shortcut(n int, menu []string) (string, error) {
	if n < 0 {
		return "", errors.Errorf("no command numbered %d", n)
	}
	if n < len(shortcutNames) {
		return shortcutNames[n], nil
	}
	i := n - len(shortcutNames)
	if i >= len(menu) {
		return "", errors.Errorf("no command numbered %d", n)
	}
	if menu[i] == "" {
		return "", errors.Errorf("command %d is not available from the prompt", n)
	}
	return menu[i], nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "enable":
		return true, nil
	case "off", "false", "0", "disable":
		return false, nil
	}
	return false, errors.Errorf("expected on or off, got %q", s)
}

// parseValue turns numbers and booleans into their typed form and leaves
// everything else as a string.
func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func printMenu(w io.Writer, menu []string) {
	columns := []util.TableColumn{
		{Header: "#", Key: "n"},
		{Header: "COMMAND", Key: "name"},
	}
	rows := make([]map[string]interface{}, 0, len(shortcutNames)+len(menu))
	for i, name := range shortcutNames {
		rows = append(rows, map[string]interface{}{"n": i, "name": name})
	}
	for i, name := range menu {
		if name == "" {
			continue
		}
		rows = append(rows, map[string]interface{}{"n": i + len(shortcutNames), "name": name})
	}
	util.RenderTable(w, columns, rows)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Also: %s, %s, %s, %s\n",
		color.CyanString("<name> key=value ..."),
		color.CyanString("video on|off"),
		color.CyanString("lidar on|off"),
		color.CyanString("quit"))
}
