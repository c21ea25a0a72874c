// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"mvdan.cc/sh/v3/shell"
)

// DefaultStopGrace is how long a cancelled console gets between SIGTERM
// and SIGKILL.
const DefaultStopGrace = 10 * time.Second

// ProcessConfig describes how to start the console.
type ProcessConfig struct {
	// CommandLine is parsed with POSIX shell quoting rules, and $VAR
	// references are expanded from Env and then the bridge's own
	// environment. No shell is started.
	CommandLine string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env adds or overrides variables for the console.
	Env map[string]string

	// MergeStderr sends the console's stderr into the framed output
	// stream. Otherwise stderr lines are logged at Warn level.
	MergeStderr bool

	// StopGrace overrides DefaultStopGrace.
	StopGrace time.Duration

	// Logger receives stderr lines and lifecycle events. If nil,
	// slog.Default() is used.
	Logger *slog.Logger
}

// Process is a running console.
type Process struct {
	command *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  chan struct{}
}

// ParseCommandLine splits a console command line into argv.
func ParseCommandLine(commandLine string, env map[string]string) ([]string, error) {
	argv, err := shell.Fields(commandLine, func(name string) string {
		if value, ok := env[name]; ok {
			return value
		}
		return os.Getenv(name)
	})
	if err != nil {
		return nil, fmt.Errorf("console: parsing command line %q: %w", commandLine, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("console: command line %q is empty", commandLine)
	}
	return argv, nil
}

// Spawn starts the console. Cancelling ctx sends SIGTERM, then SIGKILL
// after the grace period.
func Spawn(ctx context.Context, config ProcessConfig) (*Process, error) {
	argv, err := ParseCommandLine(config.CommandLine, config.Env)
	if err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	command := exec.CommandContext(ctx, argv[0], argv[1:]...)
	command.Dir = config.Dir
	command.Env = os.Environ()
	for name, value := range config.Env {
		command.Env = append(command.Env, name+"="+value)
	}
	command.Cancel = func() error {
		return command.Process.Signal(syscall.SIGTERM)
	}
	command.WaitDelay = config.StopGrace
	if command.WaitDelay <= 0 {
		command.WaitDelay = DefaultStopGrace
	}

	stdin, err := command.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("console: creating stdin pipe: %w", err)
	}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("console: creating stdout pipe: %w", err)
	}

	process := &Process{command: command, stdin: stdin, stdout: stdout}
	var stderr io.ReadCloser
	if config.MergeStderr {
		command.Stderr = command.Stdout
	} else {
		stderr, err = command.StderrPipe()
		if err != nil {
			return nil, fmt.Errorf("console: creating stderr pipe: %w", err)
		}
	}

	if err := command.Start(); err != nil {
		return nil, fmt.Errorf("console: starting %s: %w", argv[0], err)
	}
	logger.Info("console started", "command", argv[0], "args", argv[1:], "pid", command.Process.Pid)

	if stderr != nil {
		process.stderr = make(chan struct{})
		go func() {
			defer close(process.stderr)
			scanner := bufio.NewScanner(stderr)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				logger.Warn("console stderr", "line", scanner.Text())
			}
		}()
	}
	return process, nil
}

// Stdin returns the console's input pipe.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the console's output pipe.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// PID returns the console's process ID.
func (p *Process) PID() int { return p.command.Process.Pid }

// Signal delivers sig to the console.
func (p *Process) Signal(sig os.Signal) error {
	return p.command.Process.Signal(sig)
}

// Wait waits for the console to exit. Call it only after the output
// pipe has been read to EOF or abandoned.
func (p *Process) Wait() error {
	if p.stderr != nil {
		<-p.stderr
	}
	err := p.command.Wait()
	if err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
