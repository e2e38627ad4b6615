package session

import (
	"fmt"
)

// Stage names the connect step that failed.
type Stage string

const (
	StageConfig    Stage = "config"
	StageState     Stage = "state"
	StageDial      Stage = "dial"
	StageHandshake Stage = "handshake"
)

// ConnectError is returned by Connect. Connect failures are reported once
// and never retried.
type ConnectError struct {
	Stage Stage
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed during %s: %v", e.Stage, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}
