package flow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Error is a flow that cannot be run. Issues is the text shown to the user.
type Error struct {
	Title  string
	Issues string
	Err    error
}

func (e *Error) Error() string {
	msg := strings.TrimRight(e.Issues, "\n")
	if e.Err != nil {
		return fmt.Sprintf("flow %q: %s: %v", e.Title, msg, e.Err)
	}
	return fmt.Sprintf("flow %q: %s", e.Title, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Command is a runnable flow.
type Command struct {
	Title   string
	CmdLine string
	Issues  string // warnings that did not prevent the run
}

// Checker tests file accessibility for the flow's redirections.
type Checker interface {
	Readable(path string) bool
	Writable(path string) bool
}

// OSChecker checks against the local filesystem.
type OSChecker struct{}

// Readable reports whether path can be opened for reading.
func (OSChecker) Readable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Writable reports whether a file can be created in the directory of path.
func (OSChecker) Writable(path string) bool {
	f, err := os.CreateTemp(filepath.Dir(path), ".gebr-w-*")
	if err != nil {
		return false
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return true
}

// Build parses data and translates it into a command line.
func Build(data []byte, chk Checker) (*Command, error) {
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Translate(doc, chk)
}

type builder struct {
	doc    *Document
	chk    Checker
	cmd    strings.Builder
	issues strings.Builder
	n      int
}

// Translate turns doc into a command line. Disabled programs are skipped and
// reported as numbered issues; programs are joined with "|" when the previous
// one writes stdout and the next reads stdin, with ";" when neither does.
func Translate(doc *Document, chk Checker) (*Command, error) {
	b := &builder{doc: doc, chk: chk}
	if err := b.build(); err != nil {
		return nil, &Error{Title: doc.Title, Issues: b.issues.String()}
	}
	return &Command{
		Title:   doc.Title,
		CmdLine: strings.TrimRight(b.cmd.String(), " "),
		Issues:  b.issues.String(),
	}, nil
}

func (b *builder) issuef(format string, args ...any) {
	fmt.Fprintf(&b.issues, format, args...)
}

func (b *builder) fail(format string, args ...any) error {
	b.issuef(format, args...)
	return errBroken
}

var errBroken = errors.New("flow cannot be run")

// skip reports a program left out. Issues count skipped programs from 1.
func (b *builder) skip(p Program) {
	b.n++
	b.issuef("%d) Skipping disabled/unconfigured program '%s'.\n", b.n, p.Title)
}

func (b *builder) build() error {
	progs := b.doc.Programs
	if len(progs) == 0 {
		return b.fail("Empty flow.\n")
	}

	i := 0
	for ; i < len(progs) && !progs[i].Configured(); i++ {
		b.skip(progs[i])
	}
	if i == len(progs) {
		return b.fail("No configured programs.\n")
	}

	io := b.doc.IO
	first := progs[i]
	if first.ReadsStdin() {
		if io.Input == "" {
			return b.fail("No input file selected.\n")
		}
		if !b.chk.Readable(io.Input) {
			return b.fail("Input file %s not present or not accessible.\n", io.Input)
		}
		fmt.Fprintf(&b.cmd, "<\"%s\" ", io.Input)
	}
	fmt.Fprintf(&b.cmd, "%s ", first.Binary)
	if err := b.parameters(first.Parameters, first); err != nil {
		return err
	}
	if io.Error != "" && first.WritesStderr() {
		if !b.chk.Writable(io.Error) {
			return b.fail("Write permission to %s not granted.\n", io.Error)
		}
		fmt.Fprintf(&b.cmd, "2>> \"%s\" ", io.Error)
	}

	prevStdout := first.WritesStdout()
	for _, p := range progs[i+1:] {
		if !p.Configured() {
			b.skip(p)
			continue
		}
		switch {
		case prevStdout && p.ReadsStdin():
			fmt.Fprintf(&b.cmd, "| %s ", p.Binary)
		case !prevStdout && !p.ReadsStdin():
			fmt.Fprintf(&b.cmd, "; %s ", p.Binary)
		case p.ReadsStdin():
			return b.fail("Broken flow before %s (no input).\n", p.Title)
		default:
			return b.fail("Broken flow before %s (unexpected output).\n", p.Title)
		}
		if err := b.parameters(p.Parameters, p); err != nil {
			return err
		}
		if io.Error != "" && p.WritesStderr() {
			fmt.Fprintf(&b.cmd, "2>> \"%s\" ", io.Error)
		}
		prevStdout = p.WritesStdout()
	}

	if io.Error == "" {
		b.issuef("No error file selected; error output merged with standard output.\n")
	}
	if prevStdout {
		if io.Output == "" {
			b.issuef("Proceeding without output file.\n")
			return nil
		}
		if !b.chk.Writable(io.Output) {
			return b.fail("Write permission to %s not granted.\n", io.Output)
		}
		fmt.Fprintf(&b.cmd, ">\"%s\"", io.Output)
	}
	return nil
}

func (b *builder) parameters(ps Parameters, prog Program) error {
	for _, p := range ps.Items {
		if err := b.parameter(p, prog); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) parameter(p Parameter, prog Program) error {
	if g := p.Group; g != nil {
		for _, inst := range g.Instances {
			var err error
			if sel, ok := inst.Selected(); ok {
				err = b.parameter(sel, prog)
			} else {
				err = b.parameters(inst, prog)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
	if f := p.Flag; f != nil {
		if yes(f.Value) {
			fmt.Fprintf(&b.cmd, "%s ", f.Keyword)
		}
		return nil
	}
	v := p.valued()
	if v == nil {
		return b.fail("Unknown parameter type.\n")
	}
	if v.Value != "" {
		fmt.Fprintf(&b.cmd, "%s\"%s\" ", v.Keyword, v.Value)
		return nil
	}
	if v.IsRequired() {
		return b.fail("Required parameter '%s' of program '%s' not provided.\n", v.Label, prog.Title)
	}
	return nil
}
