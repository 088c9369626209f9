package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"go.bug.st/serial"
)

// Transport names accepted by Endpoint.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Defaults for Endpoint fields.
const (
	DefaultPort        = 8080
	DefaultBaud        = 115200
	DefaultDialTimeout = 5 * time.Second
)

// Endpoint describes how to reach the ground link.
type Endpoint struct {
	// Transport is "tcp" (default) or "serial".
	Transport string
	// Address is host:port for tcp or the device path for serial.
	Address string
	// Baud is the serial line rate.
	Baud int
	// DialTimeout bounds connection setup for tcp.
	DialTimeout time.Duration
}

// TCPEndpoint builds a tcp endpoint from host and port.
func TCPEndpoint(host string, port int) Endpoint {
	return Endpoint{Transport: TransportTCP, Address: net.JoinHostPort(host, strconv.Itoa(port))}
}

func (e Endpoint) String() string {
	if e.Transport == TransportSerial {
		return fmt.Sprintf("serial:%s@%d", e.Address, e.baud())
	}
	return "tcp:" + e.Address
}

func (e Endpoint) baud() int {
	if e.Baud > 0 {
		return e.Baud
	}
	return DefaultBaud
}

// DialStream opens the byte stream described by ep. Failures are reported
// as *StreamError matching ErrConnectionRefused or ErrConnectionReset.
func DialStream(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error) {
	switch ep.Transport {
	case "", TransportTCP:
		return dialTCP(ctx, ep)
	case TransportSerial:
		return openSerial(ep)
	}
	return nil, fmt.Errorf("unknown transport %q", ep.Transport)
}

func dialTCP(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error) {
	timeout := ep.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", ep.Address)
	if err != nil {
		if errors.Is(err, syscall.ECONNRESET) {
			return nil, &StreamError{Kind: StreamReset, Msg: "dial " + ep.String(), Err: err}
		}
		return nil, &StreamError{Kind: StreamRefused, Msg: "dial " + ep.String(), Err: err}
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		// Envelopes are written whole; do not wait to coalesce.
		_ = tcp.SetNoDelay(true)
	}
	return conn, nil
}

func openSerial(ep Endpoint) (io.ReadWriteCloser, error) {
	port, err := serial.Open(ep.Address, &serial.Mode{
		BaudRate: ep.baud(),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, &StreamError{Kind: StreamRefused, Msg: "open " + ep.String(), Err: err}
	}
	return port, nil
}

// SerialPorts lists the serial devices present on the host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
