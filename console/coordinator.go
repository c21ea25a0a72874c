// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	// DefaultQueueCapacity bounds both coordinator queues. Producers
	// block when it is reached.
	DefaultQueueCapacity = 2

	// DefaultHelpCommand lists the console's commands.
	DefaultHelpCommand = "help"
)

var (
	// ErrConsoleClosed is returned by Run when the console's output
	// stream ends.
	ErrConsoleClosed = errors.New("console: output closed")

	// ErrStopped is returned by Submit once the coordinator has shut
	// down.
	ErrStopped = errors.New("console: coordinator stopped")

	// ErrEmptyCommand rejects blank command lines.
	ErrEmptyCommand = errors.New("console: empty command")

	// ErrReservedCommand rejects a command equal to the marker, which
	// would end the frame early.
	ErrReservedCommand = errors.New("console: command collides with the frame marker")
)

// State is the coordinator's position in the command/frame alternation.
type State int32

const (
	// StateIdle means no command is in flight.
	StateIdle State = iota

	// StateAwaitingFrame means a command has been injected and its
	// frame has not completed. Further commands wait in the queue.
	StateAwaitingFrame
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFrame:
		return "awaiting-frame"
	default:
		return "unknown"
	}
}

// Output is one unit on the outbound queue: either a chunk of a
// command's output or a signal that the command table was refreshed.
type Output struct {
	Origin Origin

	// Chunk is set for command output.
	Chunk *Chunk

	// Final is true on the last chunk of a frame.
	Final bool

	// Refresh is set when a help listing was compiled instead of
	// delivered.
	Refresh *Table
}

// Sink delivers outputs to the remote side. Deliver is called from a
// single goroutine, in queue order. Errors are logged by the
// coordinator and do not stop the bridge.
type Sink interface {
	Deliver(ctx context.Context, output Output) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, output Output) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, output Output) error {
	return f(ctx, output)
}

// Coordinator connects a console process to the command table and the
// remote sink. Configure the exported fields, then call Run. Submit may
// be called before Run starts; requests queue until the writer picks
// them up.
type Coordinator struct {
	// Stdin is the console's input. Only the writer loop writes to it.
	// It is closed when Run returns.
	Stdin io.WriteCloser

	// Stdout is the console's output. Only the reader loop reads it.
	// It is closed when Run returns so a blocked read unwinds.
	Stdout io.ReadCloser

	// Decoder frames Stdout. Required.
	Decoder *Decoder

	// Registry receives compiled help listings. Required.
	Registry *Registry

	// Sink receives chunks and refresh signals. Required.
	Sink Sink

	// Marker is the sentinel written after each command. Defaults to
	// DefaultMarker.
	Marker string

	// MaxChunkSize bounds chunk length in bytes. Defaults to
	// DefaultMaxChunkSize.
	MaxChunkSize int

	// QueueCapacity bounds the inbound and outbound queues. Defaults to
	// DefaultQueueCapacity.
	QueueCapacity int

	// HelpCommand is issued first and whenever a refresh is requested.
	// Defaults to DefaultHelpCommand.
	HelpCommand string

	// HelpPrefix additionally marks any frame whose first line starts
	// with it as a help listing, even if it did not answer a help
	// request. Empty disables prefix detection.
	HelpPrefix string

	// OnFrame, if set, is called by the reader loop for every
	// completed frame, help listings included, before it is routed.
	OnFrame func(Frame)

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	initOnce    sync.Once
	toConsole   chan Request
	fromConsole chan Output
	frameDone   chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once

	mu       sync.Mutex
	state    State
	inflight Request
}

func (c *Coordinator) init() {
	c.initOnce.Do(func() {
		capacity := c.QueueCapacity
		if capacity <= 0 {
			capacity = DefaultQueueCapacity
		}
		c.toConsole = make(chan Request, capacity)
		c.fromConsole = make(chan Output, capacity)
		c.frameDone = make(chan struct{}, 1)
		c.stopped = make(chan struct{})
	})
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Coordinator) marker() string {
	if c.Marker != "" {
		return c.Marker
	}
	return DefaultMarker
}

func (c *Coordinator) helpCommand() string {
	if c.HelpCommand != "" {
		return c.HelpCommand
	}
	return DefaultHelpCommand
}

func (c *Coordinator) maxChunkSize() int {
	if c.MaxChunkSize > 0 {
		return c.MaxChunkSize
	}
	return DefaultMaxChunkSize
}

// State reports whether a command is currently in flight.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	c.init()
	return c.stopped
}

// DecodeAnomalies returns how many console output lines needed repair
// so far.
func (c *Coordinator) DecodeAnomalies() int {
	if c.Decoder == nil {
		return 0
	}
	return c.Decoder.Anomalies()
}

// Submit queues a request for the console. It blocks while the queue is
// full, until ctx is done or the coordinator stops.
func (c *Coordinator) Submit(ctx context.Context, request Request) error {
	c.init()
	if strings.TrimSpace(request.Line) == "" {
		return ErrEmptyCommand
	}
	if strings.ContainsAny(request.Line, "\r\n") {
		return fmt.Errorf("%w: %q", ErrMultilineCommand, request.Line)
	}
	if strings.TrimSpace(request.Line) == c.marker() {
		return ErrReservedCommand
	}

	select {
	case <-c.stopped:
		return ErrStopped
	default:
	}
	select {
	case c.toConsole <- request:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshCommands queues a help request. Its output is compiled into
// the registry rather than delivered.
func (c *Coordinator) RefreshCommands(ctx context.Context, origin Origin) error {
	return c.Submit(ctx, Request{Line: c.helpCommand(), Origin: origin, Kind: RequestHelp})
}

// Run drives the console until its output closes, a write to its input
// fails, or ctx is cancelled, and returns the cause. The caller owns
// the console process and is expected to terminate it afterwards; the
// bridge does not restart anything.
func (c *Coordinator) Run(ctx context.Context) error {
	c.init()
	if c.Stdin == nil || c.Stdout == nil {
		return fmt.Errorf("console: Stdin and Stdout are required")
	}
	if c.Decoder == nil || c.Registry == nil || c.Sink == nil {
		return fmt.Errorf("console: Decoder, Registry and Sink are required")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	var loops sync.WaitGroup
	loops.Add(3)
	go func() {
		defer loops.Done()
		errs <- c.writeLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		errs <- c.readLoop(ctx)
	}()
	go func() {
		defer loops.Done()
		c.deliverLoop(ctx)
	}()

	cause := <-errs
	cancel()
	c.stopOnce.Do(func() { close(c.stopped) })

	// Unblock a writer stuck on a full pipe and a reader stuck in Read.
	if err := c.Stdin.Close(); err != nil {
		c.logger().Debug("closing console input", "error", err)
	}
	if err := c.Stdout.Close(); err != nil {
		c.logger().Debug("closing console output", "error", err)
	}
	loops.Wait()

	anomalies := c.Decoder.Anomalies()
	switch {
	case errors.Is(cause, ErrConsoleClosed):
		c.logger().Info("console output closed", "decode_anomalies", anomalies)
	case errors.Is(cause, context.Canceled):
		c.logger().Info("console bridge stopping", "decode_anomalies", anomalies)
	default:
		c.logger().Error("console bridge failed", "error", cause, "decode_anomalies", anomalies)
	}
	return cause
}

// writeLoop owns Stdin. The help listing goes first so the command
// table exists before user commands are routed.
func (c *Coordinator) writeLoop(ctx context.Context) error {
	injector := NewInjector(c.Stdin, c.marker())

	help := Request{Line: c.helpCommand(), Origin: OriginBridge, Kind: RequestHelp}
	if err := c.issue(ctx, injector, help); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case request := <-c.toConsole:
			if err := c.issue(ctx, injector, request); err != nil {
				return err
			}
		}
	}
}

// issue injects one request and waits for its frame. Holding the writer
// here is what keeps at most one frame in flight.
func (c *Coordinator) issue(ctx context.Context, injector *Injector, request Request) error {
	c.mu.Lock()
	c.state = StateAwaitingFrame
	c.inflight = request
	c.mu.Unlock()

	c.logger().Debug("injecting console command",
		"command", request.Line,
		"kind", request.Kind,
		"origin", string(request.Origin),
	)
	if err := injector.Inject(request.Line); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.frameDone:
		return nil
	}
}

// readLoop owns Stdout.
func (c *Coordinator) readLoop(ctx context.Context) error {
	err := c.Decoder.Run(ctx, c.Stdout, func(frame Frame) error {
		return c.handleFrame(ctx, frame)
	})
	if err != nil {
		return err
	}
	return ErrConsoleClosed
}

func (c *Coordinator) handleFrame(ctx context.Context, frame Frame) error {
	c.mu.Lock()
	awaiting := c.state == StateAwaitingFrame
	if awaiting {
		frame.Request = c.inflight
	}
	c.mu.Unlock()

	if c.OnFrame != nil {
		c.OnFrame(frame)
	}

	var err error
	if IsHelpListing(frame, c.HelpPrefix) {
		err = c.compile(ctx, frame)
	} else {
		err = c.forward(ctx, frame)
	}
	if err != nil {
		return err
	}

	if awaiting {
		c.mu.Lock()
		c.state = StateIdle
		c.inflight = Request{}
		c.mu.Unlock()
		c.frameDone <- struct{}{}
	}
	return nil
}

// IsHelpListing reports whether frame is a help listing: either the
// answer to the bridge's own help request, or, when prefix is set, a
// frame whose first line starts with prefix.
func IsHelpListing(frame Frame, prefix string) bool {
	if frame.Request.Kind == RequestHelp {
		return true
	}
	return prefix != "" && len(frame.Lines) > 0 && strings.HasPrefix(frame.Lines[0], prefix)
}

func (c *Coordinator) compile(ctx context.Context, frame Frame) error {
	table := c.Registry.Refresh(frame.Text())
	c.logger().Info("command table compiled",
		"generation", table.Generation(),
		"forwarded", table.Forwarded(),
		"total", table.Len(),
	)
	return c.enqueue(ctx, Output{Origin: frame.Request.Origin, Refresh: table})
}

func (c *Coordinator) forward(ctx context.Context, frame Frame) error {
	chunks := Split(frame, c.maxChunkSize())
	c.logger().Debug("frame completed",
		"frame_id", frame.ID,
		"origin", string(frame.Request.Origin),
		"lines", len(frame.Lines),
		"bytes", frame.ByteLength,
		"chunks", len(chunks),
	)
	for index := range chunks {
		output := Output{
			Origin: frame.Request.Origin,
			Chunk:  &chunks[index],
			Final:  index == len(chunks)-1,
		}
		if err := c.enqueue(ctx, output); err != nil {
			return err
		}
	}
	return nil
}

func (c *Coordinator) enqueue(ctx context.Context, output Output) error {
	select {
	case c.fromConsole <- output:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case output := <-c.fromConsole:
			if err := c.Sink.Deliver(ctx, output); err != nil {
				c.logger().Warn("delivering console output failed",
					"origin", string(output.Origin),
					"error", err,
				)
			}
		}
	}
}
