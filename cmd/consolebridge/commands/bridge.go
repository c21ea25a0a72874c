// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/bureau-foundation/consolebridge/chat"
	"github.com/bureau-foundation/consolebridge/console"
	"github.com/bureau-foundation/consolebridge/controlapi"
	"github.com/bureau-foundation/consolebridge/lib/clock"
	"github.com/bureau-foundation/consolebridge/lib/config"
	"github.com/bureau-foundation/consolebridge/lib/process"
	"github.com/bureau-foundation/consolebridge/lib/schedule"
	"github.com/bureau-foundation/consolebridge/lib/sealed"
	"github.com/bureau-foundation/consolebridge/lib/secret"
	"github.com/bureau-foundation/consolebridge/lib/transcript"
	"github.com/bureau-foundation/consolebridge/messaging"
)

// bridge is one assembled bridge: a console, its coordinator, and the
// front ends configured around it.
type bridge struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock

	registry    *console.Registry
	router      *console.Router
	coordinator *console.Coordinator
	store       *chat.Store
	session     *messaging.Session
	frontend    *chat.Frontend
	transcript  *transcript.Writer
	scheduler   *schedule.Scheduler
	control     http.Handler
	listener    net.Listener

	console     *console.Process
	stopConsole context.CancelFunc
	started     bool
}

// newBridge connects to the homeserver, opens state, and starts the
// console. Nothing routes commands until run.
func newBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *bridge, err error) {
	b := &bridge{config: cfg, logger: logger, clock: clock.Real()}
	defer func() {
		if err != nil {
			b.close()
		}
	}()

	detector, err := console.NewBoundaryDetector(cfg.Console.Boundary, cfg.Console.EndMarkerLine())
	if err != nil {
		return nil, err
	}
	var linePrefix *regexp.Regexp
	if cfg.Console.LinePrefix != "" {
		linePrefix = regexp.MustCompile(cfg.Console.LinePrefix)
	}
	decoder := console.NewDecoder(console.DecoderOptions{
		Detector:   detector,
		Banners:    cfg.Console.Banners,
		LinePrefix: linePrefix,
		Logger:     logger,
	})

	var builtins []console.Entry
	if cfg.MatrixEnabled() {
		builtins = chat.Builtins()
	}
	b.registry = console.NewRegistry(builtins, cfg.Console.Denylist)

	b.store, err = chat.OpenStore(filepath.Join(cfg.State.Directory, chat.SubscriptionsFile))
	if err != nil {
		return nil, err
	}

	var sink console.Sink = console.SinkFunc(b.logOutput)
	if cfg.MatrixEnabled() {
		b.session, err = connectMatrix(ctx, cfg.Matrix, logger)
		if err != nil {
			return nil, err
		}
		sink = &chat.Sink{Session: b.session, Store: b.store, Logger: logger}
	}

	if cfg.Transcript.Path != "" {
		compression, err := transcript.ParseCompression(cfg.Transcript.Compression)
		if err != nil {
			return nil, err
		}
		b.transcript, err = transcript.Open(cfg.Transcript.Path, compression)
		if err != nil {
			return nil, err
		}
		logger.Info("recording transcript", "path", b.transcript.Path())
	}

	if cfg.ControlEnabled() {
		b.listener, err = net.Listen("tcp", cfg.Control.Listen)
		if err != nil {
			return nil, fmt.Errorf("control API: %w", err)
		}
	}

	env := make(map[string]string, len(cfg.Console.Environment))
	for _, entry := range cfg.Console.Environment {
		name, value, _ := strings.Cut(entry, "=")
		env[name] = value
	}
	consoleCtx, stopConsole := context.WithCancel(context.Background())
	b.stopConsole = stopConsole
	b.console, err = console.Spawn(consoleCtx, console.ProcessConfig{
		CommandLine: cfg.Console.Command,
		Dir:         cfg.Console.WorkingDirectory,
		Env:         env,
		MergeStderr: cfg.Console.MergeStderr,
		StopGrace:   cfg.Console.StopGrace,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	b.coordinator = &console.Coordinator{
		Stdin:         b.console.Stdin(),
		Stdout:        b.console.Stdout(),
		Decoder:       decoder,
		Registry:      b.registry,
		Sink:          sink,
		Marker:        cfg.Console.Marker,
		MaxChunkSize:  cfg.Console.MaxChunkSize,
		QueueCapacity: cfg.Console.QueueCapacity,
		HelpCommand:   cfg.Console.HelpCommand,
		HelpPrefix:    cfg.Console.HelpPrefix,
		Logger:        logger,
	}
	if b.transcript != nil {
		b.coordinator.OnFrame = b.record
	}
	b.router = console.NewRouter(b.registry, b.coordinator)

	if cfg.MatrixEnabled() {
		b.frontend, err = chat.NewFrontend(chat.Config{
			Session:       b.session,
			Router:        b.router,
			Registry:      b.registry,
			Refresher:     b.coordinator,
			Store:         b.store,
			Rooms:         cfg.Matrix.Rooms,
			CommandPrefix: cfg.Matrix.CommandPrefix,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if len(cfg.Schedule) > 0 {
		entries := make([]schedule.Entry, len(cfg.Schedule))
		for index, entry := range cfg.Schedule {
			entries[index] = schedule.Entry{Name: entry.Name, Spec: entry.Spec, Command: entry.Command}
		}
		b.scheduler, err = schedule.New(entries, b.submitScheduled, logger)
		if err != nil {
			return nil, err
		}
	}

	if b.listener != nil {
		b.control, err = controlapi.NewHandler(controlapi.Config{
			Router:    b.router,
			Registry:  b.registry,
			Status:    b.coordinator,
			Refresher: b.coordinator,
			TokenHash: cfg.Control.TokenHash,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

// connectMatrix opens the bridge's homeserver session from a stored
// token (plain or sealed) or a password login.
func connectMatrix(ctx context.Context, cfg config.MatrixConfig, logger *slog.Logger) (*messaging.Session, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     cfg.HomeserverURL,
		DeviceDisplayName: cfg.DisplayName,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.TokenFile == "" {
		password, err := secret.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, err
		}
		defer password.Close()
		return client.Login(ctx, cfg.Username, password)
	}

	var token *secret.Buffer
	if cfg.IdentityFile != "" {
		token, err = sealed.OpenFile(cfg.TokenFile, cfg.IdentityFile)
	} else {
		token, err = secret.ReadFile(cfg.TokenFile)
	}
	if err != nil {
		return nil, err
	}
	session, err := client.SessionFromToken(cfg.UserID, token)
	if err != nil {
		token.Close()
		return nil, err
	}
	userID, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("validating access token: %w", err)
	}
	if userID != cfg.UserID {
		session.Close()
		return nil, fmt.Errorf("access token belongs to %s, not %s", userID, cfg.UserID)
	}
	logger.Info("matrix session ready", "user_id", userID.String())
	return session, nil
}

// run drives the bridge until ctx is done or a component fails. The
// console is stopped before run returns. A console that exits on its
// own with a non-zero status produces a *process.ExitError carrying
// that status.
func (b *bridge) run(ctx context.Context) error {
	defer b.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if b.scheduler != nil {
		if err := b.scheduler.Start(ctx); err != nil {
			return err
		}
		defer b.scheduler.Stop()
		for _, upcoming := range b.scheduler.Upcoming() {
			b.logger.Info("scheduled command", "name", upcoming.Name, "next", upcoming.Next)
		}
	}
	b.started = true

	type result struct {
		component string
		err       error
	}
	results := make(chan result, 3)
	running := 0
	start := func(component string, run func(context.Context) error) {
		running++
		go func() { results <- result{component, run(ctx)} }()
	}

	start("console", b.coordinator.Run)
	if b.frontend != nil {
		start("chat", b.frontend.Run)
	}
	if b.listener != nil {
		start("control", func(ctx context.Context) error {
			return controlapi.Serve(ctx, b.listener, b.control, b.logger)
		})
	}

	var failure error
	consoleClosed := false
	for running > 0 {
		r := <-results
		running--
		if r.component == "console" && errors.Is(r.err, console.ErrConsoleClosed) {
			consoleClosed = true
		} else if r.err != nil && !errors.Is(r.err, context.Canceled) && failure == nil {
			failure = fmt.Errorf("%s: %w", r.component, r.err)
		}
		if ctx.Err() == nil {
			b.logger.Info("shutting down", "component", r.component, "error", r.err)
			cancel()
		}
	}

	exitErr := b.waitConsole(consoleClosed)
	if failure != nil {
		return failure
	}
	if consoleClosed {
		return exitErr
	}
	return nil
}

// waitConsole reaps the console. A console whose output closed is given
// its grace period to exit by itself, then SIGTERM and another grace
// period before it is stopped.
func (b *bridge) waitConsole(closed bool) error {
	waited := make(chan error, 1)
	go func() { waited <- b.console.Wait() }()

	var err error
	if closed {
		grace := b.config.Console.StopGrace
		if grace <= 0 {
			grace = console.DefaultStopGrace
		}
		select {
		case err = <-waited:
		case <-b.clock.After(grace):
			b.logger.Warn("console closed its output but is still running", "pid", b.console.PID())
			if signalErr := b.console.Signal(syscall.SIGTERM); signalErr != nil {
				b.logger.Debug("signalling console", "error", signalErr)
			}
			select {
			case err = <-waited:
			case <-b.clock.After(grace):
				b.stopConsole()
				err = <-waited
			}
		}
	} else {
		b.stopConsole()
		err = <-waited
	}

	if !closed {
		b.logger.Info("console stopped", "pid", b.console.PID())
		return nil
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		b.logger.Error("console exited", "pid", b.console.PID(), "status", exitError.ExitCode())
		code := exitError.ExitCode()
		if code <= 0 {
			code = 1
		}
		return &process.ExitError{Code: code, Err: err}
	}
	if err != nil {
		return err
	}
	b.logger.Info("console exited", "pid", b.console.PID())
	return nil
}

// record appends a frame to the transcript.
func (b *bridge) record(frame console.Frame) {
	record := transcript.Record{
		FrameID: frame.ID,
		Time:    b.clock.Now(),
		Origin:  string(frame.Request.Origin),
		Command: frame.Request.Line,
		Help:    frame.Request.Kind == console.RequestHelp,
		Lines:   frame.Lines,
	}
	if err := b.transcript.Append(record); err != nil {
		b.logger.Warn("transcript append failed", "frame_id", frame.ID, "error", err)
	}
}

// submitScheduled routes a scheduled command as if it had been typed
// in chat. A leading "/" is optional.
func (b *bridge) submitScheduled(ctx context.Context, name, line string) error {
	text := strings.TrimSpace(line)
	if !strings.HasPrefix(text, console.CommandMarker) {
		text = console.CommandMarker + text
	}
	command, ok := console.ParseCommand(text, console.Origin(schedule.Origin(name)))
	if !ok {
		return fmt.Errorf("schedule %s: %q is not a command", name, line)
	}
	return b.router.Route(ctx, command)
}

// logOutput is the sink when no chat front end is configured.
func (b *bridge) logOutput(ctx context.Context, output console.Output) error {
	switch {
	case output.Refresh != nil:
		b.logger.Info("command table refreshed",
			"generation", output.Refresh.Generation(),
			"commands", output.Refresh.Forwarded())
	case output.Chunk != nil:
		b.logger.Info("console output",
			"origin", string(output.Origin),
			"frame_id", output.Chunk.FrameID,
			"sequence", output.Chunk.Sequence,
			"text", output.Chunk.Text)
	}
	return nil
}

// close releases everything newBridge opened. It is safe to call on a
// partially built bridge; one that never ran also has its console
// stopped here.
func (b *bridge) close() {
	if !b.started {
		if b.listener != nil {
			b.listener.Close()
		}
		if b.stopConsole != nil {
			b.stopConsole()
		}
		if b.console != nil {
			b.console.Wait()
		}
	}
	if b.transcript != nil {
		if err := b.transcript.Close(); err != nil {
			b.logger.Warn("closing transcript", "error", err)
		}
		b.transcript = nil
	}
	if b.session != nil {
		b.session.Close()
		b.session = nil
	}
}
