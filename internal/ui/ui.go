package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"forgerun/internal/summary"
)

// Message is anything the UI can print.
type Message interface {
	Text(u *UI) string
}

// UI prints user-facing messages. Safe for concurrent use.
type UI struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	quiet  bool

	warn *color.Color
	fail *color.Color
	ok   *color.Color
	dim  *color.Color
}

// Options configures a UI.
type Options struct {
	Out   io.Writer
	Err   io.Writer
	Color string // auto|on|off
	Quiet bool
}

// New creates a UI.
func New(opts Options) *UI {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	u := &UI{
		out:    opts.Out,
		errOut: opts.Err,
		quiet:  opts.Quiet,
		warn:   color.New(color.FgYellow, color.Bold),
		fail:   color.New(color.FgRed, color.Bold),
		ok:     color.New(color.FgGreen),
		dim:    color.New(color.Faint),
	}
	switch strings.ToLower(opts.Color) {
	case "on":
		u.setColor(true)
	case "off":
		u.setColor(false)
	}
	return u
}

// Discard returns a UI that prints nothing.
func Discard() *UI {
	return New(Options{Out: io.Discard, Err: io.Discard, Color: "off"})
}

func (u *UI) setColor(on bool) {
	for _, c := range []*color.Color{u.warn, u.fail, u.ok, u.dim} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Println prints msg on standard output.
func (u *UI) Println(msg Message) {
	if u == nil || u.quiet {
		return
	}
	u.write(u.out, msg.Text(u))
}

// Eprintln prints msg on standard error. Quiet mode does not suppress it.
func (u *UI) Eprintln(msg Message) {
	if u == nil {
		return
	}
	u.write(u.errOut, msg.Text(u))
}

// Warn prints a warning on standard error.
func (u *UI) Warn(text string) {
	u.Eprintln(WarningMessage{Msg: text})
}

func (u *UI) write(w io.Writer, text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, _ = fmt.Fprintln(w, text) //nolint:errcheck
}

// WarningMessage is a non-fatal notice.
type WarningMessage struct{ Msg string }

func (m WarningMessage) Text(u *UI) string {
	return u.warn.Sprint("[WARNING]") + " " + m.Msg
}

// ErrorMessage reports a failure that aborted part of the run.
type ErrorMessage struct{ Msg string }

func (m ErrorMessage) Text(u *UI) string {
	return u.fail.Sprint("[ERROR]") + " " + m.Msg
}

// PlainMessage prints text as is.
type PlainMessage string

func (m PlainMessage) Text(*UI) string { return string(m) }

// TestResultMessage reports one finished test.
type TestResultMessage struct {
	Summary summary.AnyTestSummary
}

func (m TestResultMessage) Text(u *UI) string {
	line := m.Summary.String()
	switch m.Summary.Status() {
	case summary.StatusPassed:
		line = u.ok.Sprint(line)
	case summary.StatusFailed:
		line = u.fail.Sprint(line)
		if msg := m.Summary.Msg(); msg != "" {
			line += "\n\n" + indent(msg, "    ") + "\n"
		}
		if m.Summary.Kind == summary.KindFuzzing && len(m.Summary.Fuzzing.Arguments) > 0 {
			line += "    fuzzer arguments: [" + strings.Join(m.Summary.Fuzzing.Arguments, ", ") + "]\n"
		}
	case summary.StatusIgnored, summary.StatusSkipped, summary.StatusInterrupted:
		line = u.dim.Sprint(line)
	}
	return line
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := range lines {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
