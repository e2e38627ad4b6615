package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// uiSpinner shows progress on a terminal and falls back to plain lines
// when output is not a TTY or debug logging is on.
type uiSpinner struct {
	sp    *spinner.Spinner
	out   io.Writer
	plain bool
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func newUISpinner(out *os.File, verbose bool, message string) *uiSpinner {
	s := &uiSpinner{out: out, plain: verbose || !isTerminal(out)}

	if !s.plain {
		s.sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
		s.sp.Prefix = "  "
		s.sp.Suffix = " " + message
		s.sp.Start()
	} else {
		fmt.Fprintf(out, "  %s...\n", message)
	}
	return s
}

func (s *uiSpinner) Success(message string) {
	s.finish(color.GreenString("✓"), message)
}

func (s *uiSpinner) Fail(message string) {
	s.finish(color.RedString("✗"), message)
}

func (s *uiSpinner) finish(mark, message string) {
	if s.sp != nil {
		s.sp.Stop()
		fmt.Fprintf(s.out, "\r\033[K  %s %s\n", mark, message) // \033[K clears the line
		return
	}
	fmt.Fprintf(s.out, "  %s %s\n", mark, message)
}
