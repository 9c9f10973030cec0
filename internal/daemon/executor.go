package daemon

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
)

// LaunchSpec describes one job process.
type LaunchSpec struct {
	JobID   string
	CmdLine string
	Display string // exported as DISPLAY when set
}

// ExitStatus is how a job process ended.
type ExitStatus struct {
	Code   int    // exit code, -1 when killed by a signal
	Signal string // signal name when killed
}

// Issue returns the issue text reported for an abnormal exit, or "".
func (s ExitStatus) Issue() string {
	switch {
	case s.Signal != "":
		return fmt.Sprintf("Killed by signal %s.\n", s.Signal)
	case s.Code != 0:
		return fmt.Sprintf("Exit status %d.\n", s.Code)
	}
	return ""
}

// Process is a started job process.
type Process interface {
	Pid() int
	Terminate() error
	Kill() error
}

// Launcher starts job processes. output receives the process output as
// UTF-8 text; exited is called once, after the last output.
type Launcher interface {
	Launch(spec LaunchSpec, output func(chunk string), exited func(ExitStatus)) (Process, error)
}

// ShellLauncher runs command lines through "<Shell> -l -c".
type ShellLauncher struct {
	Shell string
	Dir   string
}

// Script returns the text handed to the shell.
func (l *ShellLauncher) Script(spec LaunchSpec) string {
	if spec.Display == "" {
		return spec.CmdLine
	}
	return "export DISPLAY=" + spec.Display + "; " + spec.CmdLine
}

// Launch starts spec in its own process group.
func (l *ShellLauncher) Launch(spec LaunchSpec, output func(string), exited func(ExitStatus)) (Process, error) {
	shell := l.Shell
	if shell == "" {
		shell = "bash"
	}
	cmd := exec.Command(shell, "-l", "-c", l.Script(spec))
	cmd.Env = os.Environ()
	if l.Dir != "" {
		if st, err := os.Stat(l.Dir); err == nil && st.IsDir() {
			cmd.Dir = l.Dir
		}
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", shell, err)
	}
	log.Printf("[EXEC] Job %s pid=%d", spec.JobID, cmd.Process.Pid)

	var wg sync.WaitGroup
	wg.Add(2)
	go pump(stdout, output, &wg)
	go pump(stderr, output, &wg)
	go func() {
		wg.Wait()
		exited(exitStatus(cmd.Wait()))
	}()
	return &shellProcess{p: cmd.Process}, nil
}

// pump forwards one pipe until EOF.
func pump(r io.Reader, output func(string), wg *sync.WaitGroup) {
	defer wg.Done()
	var dec outputDecoder
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if s := dec.Decode(buf[:n]); s != "" {
				output(s)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("[EXEC] Read pipe: %v", err)
			}
			break
		}
	}
	if s := dec.Flush(); s != "" {
		output(s)
	}
}

type shellProcess struct {
	p *os.Process
}

func (s *shellProcess) Pid() int { return s.p.Pid }

func (s *shellProcess) Terminate() error { return terminate(s.p) }

func (s *shellProcess) Kill() error { return kill(s.p) }

func exitStatus(err error) ExitStatus {
	if err == nil {
		return ExitStatus{}
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ExitStatus{Code: ee.ExitCode(), Signal: signalName(ee)}
	}
	log.Printf("[EXEC] Wait: %v", err)
	return ExitStatus{Code: -1}
}
