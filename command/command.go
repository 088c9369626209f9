// Package command implements the application command codec: a one byte kind
// tag, an optional big-endian transaction id, and a msgpack payload.
package command

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrMalformedCommand is returned for any command that cannot be encoded or
// decoded.
var ErrMalformedCommand = errors.New("malformed command")

// Kind is the command kind, encoded as its tag byte.
type Kind byte

const (
	Execute   Kind = '!'
	Query     Kind = '?'
	Set       Kind = '>'
	Statement Kind = '.'
)

// txidSize is the size of the transaction id carried by query and statement.
const txidSize = 2

func (k Kind) String() string {
	switch k {
	case Execute:
		return "execute"
	case Query:
		return "query"
	case Set:
		return "set"
	case Statement:
		return "statement"
	}
	return fmt.Sprintf("Kind(%#02x)", byte(k))
}

// Valid reports whether k is one of the four command kinds.
func (k Kind) Valid() bool {
	switch k {
	case Execute, Query, Set, Statement:
		return true
	}
	return false
}

// HasTransactionID reports whether commands of this kind carry a
// transaction id on the wire.
func (k Kind) HasTransactionID() bool {
	return k == Query || k == Statement
}

// ParseKind accepts a kind name ("execute") or its tag ("!").
func ParseKind(s string) (Kind, error) {
	switch s {
	case "execute", "!":
		return Execute, nil
	case "query", "?":
		return Query, nil
	case "set", ">":
		return Set, nil
	case "statement", ".":
		return Statement, nil
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrMalformedCommand, s)
}

// Command is a single application command addressed to a device.
type Command struct {
	Kind          Kind
	TransactionID uint16
	Payload       Value
}

// NewExecute builds an execute command naming the routine to run.
func NewExecute(name string) Command {
	return Command{Kind: Execute, Payload: String(name)}
}

// NewQuery builds a query for the named items.
func NewQuery(txid uint16, items ...string) Command {
	return Command{Kind: Query, TransactionID: txid, Payload: Strings(items...)}
}

// NewSet builds a set command assigning fields.
func NewSet(fields map[string]Value) Command {
	return Command{Kind: Set, Payload: Map(fields)}
}

// NewStatement builds a statement (unsolicited report) command.
func NewStatement(txid uint16, fields map[string]Value) Command {
	return Command{Kind: Statement, TransactionID: txid, Payload: Map(fields)}
}

func (c Command) String() string {
	if c.Kind.HasTransactionID() {
		return fmt.Sprintf("%s[%d](%s)", c.Kind, c.TransactionID, c.Payload)
	}
	return fmt.Sprintf("%s(%s)", c.Kind, c.Payload)
}

// Equal reports whether two commands encode identically.
func (c Command) Equal(o Command) bool {
	return c.Kind == o.Kind && c.TransactionID == o.TransactionID && c.Payload.Equal(o.Payload)
}

// Encode serializes c. Map keys are written in sorted order so equal
// commands produce equal bytes.
func Encode(c Command) ([]byte, error) {
	if !c.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %#02x", ErrMalformedCommand, byte(c.Kind))
	}
	if !c.Kind.HasTransactionID() && c.TransactionID != 0 {
		return nil, fmt.Errorf("%w: %s does not carry a transaction id", ErrMalformedCommand, c.Kind)
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(c.Kind))
	if c.Kind.HasTransactionID() {
		var id [txidSize]byte
		binary.BigEndian.PutUint16(id[:], c.TransactionID)
		buf.Write(id[:])
	}

	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	if err := enc.Encode(c.Payload.Any()); err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrMalformedCommand, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a command. The input must contain exactly one command.
func Decode(data []byte) (Command, error) {
	if len(data) == 0 {
		return Command{}, fmt.Errorf("%w: empty input", ErrMalformedCommand)
	}
	c := Command{Kind: Kind(data[0])}
	if !c.Kind.Valid() {
		return Command{}, fmt.Errorf("%w: unknown kind tag %#02x", ErrMalformedCommand, data[0])
	}
	rest := data[1:]
	if c.Kind.HasTransactionID() {
		if len(rest) < txidSize {
			return Command{}, fmt.Errorf("%w: truncated transaction id", ErrMalformedCommand)
		}
		c.TransactionID = binary.BigEndian.Uint16(rest)
		rest = rest[txidSize:]
	}
	if len(rest) == 0 {
		return Command{}, fmt.Errorf("%w: missing payload", ErrMalformedCommand)
	}

	rd := bytes.NewReader(rest)
	dec := msgpack.NewDecoder(rd)
	raw, err := dec.DecodeInterfaceLoose()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Command{}, fmt.Errorf("%w: truncated payload", ErrMalformedCommand)
		}
		return Command{}, fmt.Errorf("%w: decode payload: %v", ErrMalformedCommand, err)
	}
	if rd.Len() > 0 {
		return Command{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformedCommand, rd.Len())
	}
	c.Payload, err = FromAny(raw)
	if err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return c, nil
}
