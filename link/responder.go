package link

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/iox"
	"github.com/evidlo/rosen/log"
)

// DefaultResponderDelay mimics the relay's processing time per envelope.
const DefaultResponderDelay = 300 * time.Millisecond

// Responder is a loopback peer for bench testing. It acknowledges every
// envelope it reads after Delay.
type Responder struct {
	// Delay is applied before each acknowledgement.
	Delay time.Duration
	// Ack is the command sent back (default ok).
	Ack envelope.Command
	// Handle, when set, is called for each envelope and may return extra
	// envelopes to send before the acknowledgement.
	Handle func(env envelope.Envelope) []envelope.Envelope
	// Logger receives per-envelope logs (nil = discard).
	Logger *log.Logger
}

func (r *Responder) logger() *log.Logger {
	if r.Logger == nil {
		return log.NewNop()
	}
	return r.Logger
}

// Serve answers envelopes on conn until the peer closes it or ctx ends.
// A clean close between envelopes returns nil.
func (r *Responder) Serve(ctx context.Context, conn io.ReadWriter) error {
	ack := r.Ack
	if ack == 0 {
		ack = envelope.OK
	}
	ackBytes, err := envelope.Encode(envelope.Envelope{Command: ack})
	if err != nil {
		return err
	}

	rd := NewEnvelopeReader(conn)
	logger := r.logger()
	for {
		raw, err := rd.ReadEnvelope()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		env, decErr := envelope.Decode(raw)
		if decErr != nil {
			logger.Warn("undecodable envelope", map[string]any{"error": decErr.Error()})
		} else {
			logger.Info("received", map[string]any{"envelope": env.String()})
		}

		if r.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Delay):
			}
		}

		if decErr == nil && r.Handle != nil {
			for _, reply := range r.Handle(env) {
				out, err := envelope.Encode(reply)
				if err != nil {
					return err
				}
				if _, err := conn.Write(out); err != nil {
					return err
				}
			}
		}
		if _, err := conn.Write(ackBytes); err != nil {
			return err
		}
	}
}

// ServeListener accepts connections on ln and serves each one until ctx is
// cancelled. The listener is closed on return.
func (r *Responder) ServeListener(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	logger := r.logger()

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			cancel()
			_ = g.Wait()
			return err
		}
		logger.Info("client connected", map[string]any{"remote": conn.RemoteAddr().String()})
		g.Go(func() error {
			defer iox.DiscardClose(conn)
			stop := context.AfterFunc(ctx, func() { iox.DiscardClose(conn) })
			defer stop()
			if err := r.Serve(ctx, conn); err != nil && ctx.Err() == nil {
				logger.Warn("client session ended", map[string]any{"error": err.Error()})
			}
			logger.Info("client disconnected", map[string]any{"remote": conn.RemoteAddr().String()})
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (r *Responder) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	r.logger().Info("responder listening", map[string]any{"addr": ln.Addr().String()})
	return r.ServeListener(ctx, ln)
}
