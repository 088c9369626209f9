// Package link implements reliable envelope delivery over a byte stream.
//
// A Client keeps at most one envelope in flight. After each write it waits
// for the acknowledgement command until a per-envelope deadline; inbound
// envelopes that are not acknowledgements go to an Observer and do not
// extend the deadline. On timeout the configured RetryPolicy either resends
// the retained bytes unchanged or fails the session.
package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/log"
	"github.com/evidlo/rosen/metrics"
)

// DefaultAckTimeout is the acknowledgement deadline when none is configured.
const DefaultAckTimeout = time.Second

// inboundBuffer is how many decoded envelopes the reader may queue ahead of
// the consumer.
const inboundBuffer = 64

// State is the client's position in the delivery state machine.
type State int32

const (
	Disconnected State = iota
	Connected
	AwaitingAck
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case AwaitingAck:
		return "awaiting_ack"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// RetryPolicy selects what happens when an acknowledgement deadline elapses.
type RetryPolicy int

const (
	// RetryResend retransmits the identical bytes and waits again.
	RetryResend RetryPolicy = iota
	// RetryAbort fails the session on the first timeout.
	RetryAbort
)

func (p RetryPolicy) String() string {
	if p == RetryAbort {
		return "abort"
	}
	return "resend"
}

// ParseRetryPolicy parses "resend" or "abort".
func ParseRetryPolicy(s string) (RetryPolicy, error) {
	switch strings.ToLower(s) {
	case "", "resend", "retry":
		return RetryResend, nil
	case "abort", "fail":
		return RetryAbort, nil
	}
	return 0, fmt.Errorf("unknown retry policy %q (want resend or abort)", s)
}

// Config holds client settings.
type Config struct {
	// AckTimeout is the per-envelope acknowledgement deadline.
	AckTimeout time.Duration
	// Retry is the policy applied when AckTimeout elapses.
	Retry RetryPolicy
	// MaxAttempts bounds sends per envelope under RetryResend; 0 is unlimited.
	MaxAttempts int
	// AckCommand is the envelope command treated as an acknowledgement.
	AckCommand envelope.Command
	// Observer receives inbound envelopes that are not acknowledgements.
	Observer Observer
	// Logger receives session logs (nil = discard).
	Logger *log.Logger
	// Metrics receives link counters (nil-safe).
	Metrics *metrics.Collector
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.AckCommand == 0 {
		c.AckCommand = envelope.OK
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return c
}

// Message is one inbound envelope. Err is set when Raw did not fully
// decode; Envelope then holds whatever header fields could be read.
type Message struct {
	Raw      []byte
	Envelope envelope.Envelope
	Err      error
	Received time.Time
}

// IsAck reports whether m is a well-formed acknowledgement.
func (m Message) IsAck(ack envelope.Command) bool {
	return m.Err == nil && m.Envelope.Command == ack
}

func decodeMessage(raw []byte) Message {
	msg := Message{Raw: raw, Received: time.Now()}
	env, err := envelope.Decode(raw)
	if err != nil {
		msg.Err = &StreamError{Kind: StreamDecode, Msg: "decode inbound envelope", Err: err}
		if hdr, hdrErr := envelope.DecodeHeader(raw); hdrErr == nil {
			msg.Envelope = hdr
		}
		return msg
	}
	msg.Envelope = env
	return msg
}

// Client delivers envelopes over one stream. Send, Post and Receive must
// not be called concurrently with each other; Stop and State may be called
// from any goroutine.
type Client struct {
	conn   io.ReadWriteCloser
	cfg    Config
	logger *log.Logger

	inbound    chan Message
	readErr    error
	readerDone chan struct{}

	state    atomic.Int32
	failed   atomic.Bool
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial opens ep and returns a connected client.
func Dial(ctx context.Context, ep Endpoint, cfg Config) (*Client, error) {
	conn, err := DialStream(ctx, ep)
	if err != nil {
		return nil, err
	}
	c := NewClient(conn, cfg)
	c.logger.Info("connected", map[string]any{"endpoint": ep.String()})
	return c, nil
}

// NewClient wraps an open stream. The client owns conn and closes it in
// Close.
func NewClient(conn io.ReadWriteCloser, cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		conn:       conn,
		cfg:        cfg,
		logger:     cfg.Logger,
		inbound:    make(chan Message, inboundBuffer),
		readerDone: make(chan struct{}),
		stopCh:     make(chan struct{}),
		closed:     make(chan struct{}),
	}
	c.state.Store(int32(Connected))
	cfg.Metrics.IncSessionStarted()
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.readerDone)
	defer close(c.inbound)

	rd := NewEnvelopeReader(c.conn)
	for {
		raw, err := rd.ReadEnvelope()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Keep io.EOF out of the chain; callers read it as an
				// exhausted source.
				err = &StreamError{Kind: StreamReset, Msg: "peer closed the stream"}
			}
			c.readErr = err
			return
		}
		c.cfg.Metrics.RecordReceive(len(raw))
		select {
		case c.inbound <- decodeMessage(raw):
		case <-c.closed:
			return
		}
	}
}

// State returns the current state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// fail moves to a terminal state and counts the session as failed once.
func (c *Client) fail(s State) {
	c.setState(s)
	if c.failed.CompareAndSwap(false, true) {
		c.cfg.Metrics.IncSessionFailed()
	}
}

// Stop raises the cooperative stop flag. A pending acknowledgement wait or
// receive returns ErrStopped and Run returns before pulling the next
// envelope.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopCh)
	})
}

// Stopped reports whether Stop has been called.
func (c *Client) Stopped() bool {
	return c.stopped.Load()
}

// Close closes the stream and waits for the reader to exit.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.conn.Close()
		<-c.readerDone
		c.setState(Disconnected)
	})
	return c.closeErr
}

// Run sends every envelope src yields, each reliably, until src returns
// io.EOF (nil result), the stop flag is raised (ErrStopped), or delivery
// fails.
func (c *Client) Run(ctx context.Context, src Source) error {
	sent := 0
	for {
		if c.stopped.Load() {
			c.logger.Info("session stopped", map[string]any{"sent": sent})
			return ErrStopped
		}
		env, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			c.logger.Info("packet source exhausted", map[string]any{"sent": sent})
			return nil
		}
		if err != nil {
			return fmt.Errorf("next envelope: %w", err)
		}
		if err := c.Send(ctx, env); err != nil {
			return err
		}
		sent++
	}
}

// Send encodes env, writes it and waits for the acknowledgement, applying
// the retry policy on timeout. Encoding errors are returned before any
// byte is written.
func (c *Client) Send(ctx context.Context, env envelope.Envelope) error {
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	c.logger.Debug("sending envelope", map[string]any{"envelope": env.String()})
	return c.SendRaw(ctx, raw)
}

// SendRaw delivers pre-encoded envelope bytes. The same slice is written
// on every attempt.
func (c *Client) SendRaw(ctx context.Context, raw []byte) error {
	if st := c.State(); st != Connected {
		return fmt.Errorf("%w: client is %s", ErrNotConnected, st)
	}
	c.setState(AwaitingAck)

	for attempt := 1; ; attempt++ {
		if c.stopped.Load() {
			c.setState(Connected)
			return ErrStopped
		}
		if err := c.write(raw, attempt > 1); err != nil {
			return err
		}

		err := c.awaitAck(ctx)
		if err == nil {
			c.cfg.Metrics.IncAck()
			c.setState(Connected)
			c.logger.Debug("ack received", map[string]any{"attempt": attempt})
			return nil
		}
		if !errors.Is(err, ErrAckTimeout) {
			if c.State() == AwaitingAck {
				c.setState(Connected)
			}
			return err
		}

		c.cfg.Metrics.IncAckTimeout()
		fields := map[string]any{
			"attempt":     attempt,
			"ack_timeout": c.cfg.AckTimeout.String(),
			"policy":      c.cfg.Retry.String(),
		}
		if c.cfg.Retry == RetryAbort || (c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts) {
			c.fail(Failed)
			c.logger.Error("ack timeout, giving up", fields)
			return fmt.Errorf("%w after %d attempt(s)", ErrAckTimeout, attempt)
		}
		c.logger.Warn("ack timeout, resending", fields)
	}
}

// Post writes env without waiting for an acknowledgement.
func (c *Client) Post(env envelope.Envelope) error {
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	if st := c.State(); st != Connected {
		return fmt.Errorf("%w: client is %s", ErrNotConnected, st)
	}
	c.logger.Debug("posting envelope", map[string]any{"envelope": env.String()})
	return c.write(raw, false)
}

// Receive returns the next inbound envelope, including acknowledgements.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.stopCh:
		return Message{}, ErrStopped
	case msg, ok := <-c.inbound:
		if !ok {
			return Message{}, c.disconnected()
		}
		return msg, nil
	}
}

func (c *Client) awaitAck(ctx context.Context) error {
	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		case <-timer.C:
			return ErrAckTimeout
		case msg, ok := <-c.inbound:
			if !ok {
				return c.disconnected()
			}
			if msg.IsAck(c.cfg.AckCommand) {
				return nil
			}
			c.observe(msg)
		}
	}
}

func (c *Client) observe(msg Message) {
	c.cfg.Metrics.IncObserved()
	if msg.Err != nil {
		c.cfg.Metrics.IncDecodeErrors()
		c.logger.Warn("corrupt inbound envelope", map[string]any{"error": msg.Err.Error()})
	} else {
		c.logger.Debug("inbound envelope", map[string]any{"envelope": msg.Envelope.String()})
	}
	if c.cfg.Observer == nil {
		return
	}
	if err := c.cfg.Observer.Observe(msg); err != nil {
		c.logger.Warn("observation log write failed", map[string]any{"error": err.Error()})
	}
}

// disconnected is called once the reader has exited. readErr is visible
// here because the reader closes inbound after setting it.
func (c *Client) disconnected() error {
	c.fail(Disconnected)
	err := c.readErr
	if err == nil {
		err = &StreamError{Kind: StreamReset, Msg: "stream closed"}
	}
	c.logger.Error("stream disconnected", map[string]any{"error": err.Error()})
	return err
}

func (c *Client) write(raw []byte, retransmit bool) error {
	if _, err := c.conn.Write(raw); err != nil {
		c.fail(Disconnected)
		return &StreamError{Kind: StreamReset, Msg: "write envelope", Err: err}
	}
	c.cfg.Metrics.RecordSend(len(raw), retransmit)
	return nil
}
