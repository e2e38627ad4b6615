// Package robot holds the values shared by the session, dispatcher and
// sensor pipelines: named commands and the error taxonomy callers classify
// with errors.Is.
package robot

import (
	"github.com/pkg/errors"
)

var (
	// ErrNotConnected is returned for any operation attempted while the
	// session is not in the Connected state.
	ErrNotConnected = errors.New("session not connected")

	// ErrUnknownCommand marks a command name missing from the capability
	// catalog. It is detected before anything reaches the link.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidParameters marks parameters that do not match the catalog
	// schema of an otherwise known command.
	ErrInvalidParameters = errors.New("invalid command parameters")

	// ErrCommandFailed marks a command the link rejected or could not
	// deliver. Commands are never retried.
	ErrCommandFailed = errors.New("command failed")

	// ErrQueueFull is returned when the link work queue cannot accept more
	// work without blocking the caller.
	ErrQueueFull = errors.New("link work queue full")

	// ErrSensorEnableFailed marks a sensor pipeline whose best-effort enable
	// sequence was exhausted. The pipeline may remain partially enabled.
	ErrSensorEnableFailed = errors.New("sensor enable failed")

	// ErrSessionLost marks work abandoned because the loss monitor declared
	// the session dead.
	ErrSessionLost = errors.New("session lost")

	// ErrUnsupported marks a link capability that is absent.
	ErrUnsupported = errors.New("capability not supported by link")
)

// Command is a named robot command with optional parameters. Parameter
// values are numbers or strings.
type Command struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewCommand builds a command without parameters.
func NewCommand(name string) Command {
	return Command{Name: name}
}

// With returns a copy of c with the given parameter set.
func (c Command) With(key string, value any) Command {
	params := make(map[string]any, len(c.Parameters)+1)
	for k, v := range c.Parameters {
		params[k] = v
	}
	params[key] = value
	c.Parameters = params
	return c
}
