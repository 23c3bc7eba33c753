package ld2410

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// sessionState tracks the controller's phase. Configuration commands and
// data streaming are mutually exclusive phases on the device itself, so the
// controller refuses calls that do not fit the current state.
type sessionState byte

const (
	idle sessionState = iota
	awaitingConfigAck
	configuring
	running
	stopped
)

func (s sessionState) String() string {
	switch s {
	case idle:
		return "idle"
	case awaitingConfigAck:
		return "awaitingConfigAck"
	case configuring:
		return "configuring"
	case running:
		return "running"
	case stopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Controller owns the command/ack handshake and the background reader that
// keeps the latest measurement available to callers. The stream is shared:
// while running only the background worker touches it, and configuration
// commands are only issued while the worker is not running.
type Controller struct {
	stream  io.ReadWriter
	scanner *frameScanner

	ackTimeout  time.Duration
	idleTimeout time.Duration

	mu    sync.Mutex // guards state, mode, stop/done and command round-trips
	state sessionState
	mode  Mode
	stop  chan struct{}
	done  chan struct{}

	lastMu  sync.RWMutex
	last    Measurement
	hasLast bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithAckTimeout sets how long a configuration command waits for its ack.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Controller) { c.ackTimeout = d }
}

// WithFrameTimeout sets the per-iteration scan window of the background
// worker. It only affects how quickly Stop is honored, not data latency.
func WithFrameTimeout(d time.Duration) Option {
	return func(c *Controller) { c.idleTimeout = d }
}

// NewController returns a Controller over an attached byte stream, typically
// a *Device. The controller starts in standard mode and idle state.
func NewController(stream io.ReadWriter, opts ...Option) *Controller {
	c := &Controller{
		stream:      stream,
		scanner:     newFrameScanner(stream),
		ackTimeout:  1 * time.Second,
		idleTimeout: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the reporting mode the controller currently tracks.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Running reports whether the background worker is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == running
}

// Latest returns the most recently decoded measurement. It never blocks on
// the background worker and never clears the cache; before the first
// successful decode it returns ok == false.
func (c *Controller) Latest() (m Measurement, ok bool) {
	c.lastMu.RLock()
	defer c.lastMu.RUnlock()
	return c.last, c.hasLast
}

// Start spawns the background worker that scans for data frames and
// replaces the latest-measurement slot. The controller must not be in
// configuration mode: data streaming and configuration are exclusive phases.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case idle, stopped:
	case running:
		return fmt.Errorf("%w: already running", ErrInvalidState)
	default:
		return fmt.Errorf("%w: %v (exit configuration mode first)", ErrInvalidState, c.state)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.state = running
	log.Info("Radar polling started")
	go c.poll(c.mode, c.stop, c.done)
	return nil
}

// Stop signals the worker and waits for it to exit, so a subsequent Start
// can not race a still-exiting worker. The cached measurement is kept.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != running {
		log.Debug("Calling Stop but radar isn't running")
		return fmt.Errorf("%w: %v", ErrInvalidState, c.state)
	}
	close(c.stop)
	<-c.done
	c.state = stopped
	log.Info("Radar polling stopped")
	return nil
}

// poll is the background worker. A frame read in progress always runs to
// completion or timeout before the stop signal is honored. Decode failures
// are skipped: a single corrupted frame must not kill the session.
func (c *Controller) poll(mode Mode, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, err := c.scanner.next(time.Now().Add(c.idleTimeout))
		if errors.Is(err, ErrTimeout) {
			continue
		}
		if err != nil {
			log.Errorf("Radar read failed, stopping worker: %v", err)
			return
		}
		if raw.Kind == FrameAck {
			// No request can be outstanding while running.
			log.Warnf("Discarding ack frame '%# x' with no outstanding request", raw.Payload)
			continue
		}
		m, err := decodeMeasurement(raw.Payload, mode)
		if err != nil {
			log.Warnf("Skipping data frame: %v", err)
			continue
		}
		c.setLatest(m)
	}
}

func (c *Controller) setLatest(m Measurement) {
	c.lastMu.Lock()
	c.last = m
	c.hasLast = true
	c.lastMu.Unlock()
}

// roundTrip sends one command frame and waits for its ack. Data frames that
// are still in flight from the device are discarded while waiting. Callers
// must hold c.mu.
func (c *Controller) roundTrip(req CommandRequest) (CommandResult, error) {
	frame := encodeCommand(req)
	if _, err := c.stream.Write(frame); err != nil {
		return CommandResult{}, fmt.Errorf("send command %v: %w", req.Command, err)
	}

	deadline := time.Now().Add(c.ackTimeout)
	for {
		raw, err := c.scanner.next(deadline)
		if err != nil {
			return CommandResult{}, fmt.Errorf("await ack for %v: %w", req.Command, err)
		}
		if raw.Kind == FrameData {
			log.Debugf("Discarding data frame while awaiting ack for %v", req.Command)
			continue
		}
		res, err := decodeAck(raw, req.Command)
		if err != nil {
			return res, err
		}
		if !res.Ok() {
			return res, &DeviceError{Command: req.Command, Status: res.Status}
		}
		return res, nil
	}
}

// command runs one configuration round-trip. Only legal in configuring state.
func (c *Controller) command(cmd Command, payload []byte) (CommandResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != configuring {
		return CommandResult{}, fmt.Errorf("%w: command %v requires configuration mode, state is %v", ErrInvalidState, cmd, c.state)
	}
	return c.roundTrip(CommandRequest{Command: cmd, Payload: payload})
}
