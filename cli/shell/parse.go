// Package shell turns operator command lines into envelopes.
//
// Grammar (keywords are case-insensitive):
//
//	! DEVICE NAME              execute NAME on DEVICE
//	? DEVICE TXID ITEM...      query ITEMs
//	> DEVICE KEY=VALUE...      set fields
//	. DEVICE TXID KEY=VALUE... statement
//	storage list|clear|enable|disable
//	storage rm|exec|down|info FILE
//	time get
//	time set TIME              TIME is unix seconds or a date
//	relay reset
//	relay addr IPV4
//	abort
//
// Device commands are wrapped in an exec-now envelope addressed from
// ground. VALUE is parsed as an integer, float, true/false, null, a
// double-quoted string, or else taken as a bare string.
package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/evidlo/rosen/command"
	"github.com/evidlo/rosen/envelope"
	"github.com/evidlo/rosen/frame"
	"github.com/evidlo/rosen/script"
)

var (
	// ErrBlank is returned for empty and comment lines.
	ErrBlank = errors.New("blank line")
	// ErrSyntax is returned for lines that do not match the grammar.
	ErrSyntax = errors.New("syntax error")
)

func syntaxf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSyntax, fmt.Sprintf(format, args...))
}

// Parse converts one line into an envelope.
func Parse(line string) (envelope.Envelope, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return envelope.Envelope{}, ErrBlank
	}
	args, err := split(line)
	if err != nil {
		return envelope.Envelope{}, err
	}

	head := strings.ToLower(args[0])
	switch head {
	case "!", "?", ">", ".":
		return parseDevice(head, args[1:])
	case "storage":
		return parseStorage(args[1:])
	case "time":
		return parseTime(args[1:])
	case "relay":
		return parseRelay(args[1:])
	case "abort":
		if len(args) != 1 {
			return envelope.Envelope{}, syntaxf("abort takes no arguments")
		}
		return envelope.Envelope{Command: envelope.AbortScript}, nil
	}
	return envelope.Envelope{}, syntaxf("unknown command %q", args[0])
}

func parseDevice(tag string, args []string) (envelope.Envelope, error) {
	if len(args) < 1 {
		return envelope.Envelope{}, syntaxf("%s needs a device", tag)
	}
	dev, err := frame.ParseDevice(strings.ToLower(args[0]))
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("%w: %w", ErrSyntax, err)
	}
	args = args[1:]

	var cmd command.Command
	switch tag {
	case "!":
		if len(args) != 1 {
			return envelope.Envelope{}, syntaxf("! needs exactly one routine name")
		}
		cmd = command.NewExecute(args[0])
	case "?":
		if len(args) < 2 {
			return envelope.Envelope{}, syntaxf("? needs a transaction id and at least one item")
		}
		txid, err := parseTxID(args[0])
		if err != nil {
			return envelope.Envelope{}, err
		}
		cmd = command.NewQuery(txid, args[1:]...)
	case ">":
		fields, err := parseFields(args)
		if err != nil {
			return envelope.Envelope{}, err
		}
		cmd = command.NewSet(fields)
	case ".":
		if len(args) < 1 {
			return envelope.Envelope{}, syntaxf(". needs a transaction id")
		}
		txid, err := parseTxID(args[0])
		if err != nil {
			return envelope.Envelope{}, err
		}
		fields, err := parseFields(args[1:])
		if err != nil {
			return envelope.Envelope{}, err
		}
		cmd = command.NewStatement(txid, fields)
	}

	f := frame.NewRoute(dev, cmd)
	env := envelope.Envelope{Command: envelope.ExecNow, Frame: &f}
	// Surface size and payload errors at parse time.
	if _, err := envelope.Encode(env); err != nil {
		return envelope.Envelope{}, err
	}
	return env, nil
}

func parseStorage(args []string) (envelope.Envelope, error) {
	if len(args) == 0 {
		return envelope.Envelope{}, syntaxf("storage needs a subcommand")
	}
	sub := strings.ToLower(args[0])

	noFile := map[string]envelope.Command{
		"list":    envelope.ListStorage,
		"clear":   envelope.ClearStorage,
		"enable":  envelope.EnableStorage,
		"disable": envelope.DisableStorage,
	}
	withFile := map[string]envelope.Command{
		"rm":   envelope.RemoveFile,
		"exec": envelope.ExecuteFile,
		"down": envelope.DownloadFile,
		"info": envelope.FileInfo,
	}

	if cmd, ok := noFile[sub]; ok {
		if len(args) != 1 {
			return envelope.Envelope{}, syntaxf("storage %s takes no arguments", sub)
		}
		return envelope.Envelope{Command: cmd}, nil
	}
	if cmd, ok := withFile[sub]; ok {
		if len(args) != 2 {
			return envelope.Envelope{}, syntaxf("storage %s needs one file name", sub)
		}
		env := envelope.Envelope{Command: cmd, Filename: args[1]}
		if _, err := envelope.Encode(env); err != nil {
			return envelope.Envelope{}, err
		}
		return env, nil
	}
	return envelope.Envelope{}, syntaxf("unknown storage subcommand %q", args[0])
}

func parseTime(args []string) (envelope.Envelope, error) {
	switch {
	case len(args) == 1 && strings.EqualFold(args[0], "get"):
		return envelope.Envelope{Command: envelope.GetTime}, nil
	case len(args) >= 2 && strings.EqualFold(args[0], "set"):
		ts, err := script.UnixTime(strings.Join(args[1:], " "))
		if err != nil {
			return envelope.Envelope{}, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		return envelope.Envelope{Command: envelope.SetTime, Timestamp: ts}, nil
	}
	return envelope.Envelope{}, syntaxf("usage: time get | time set TIME")
}

func parseRelay(args []string) (envelope.Envelope, error) {
	switch {
	case len(args) == 1 && strings.EqualFold(args[0], "reset"):
		return envelope.Envelope{Command: envelope.ResetRelay}, nil
	case len(args) == 2 && strings.EqualFold(args[0], "addr"):
		addr, err := envelope.ParseAddress(args[1])
		if err != nil {
			return envelope.Envelope{}, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		return envelope.Envelope{Command: envelope.SetAddress, Address: addr}, nil
	}
	return envelope.Envelope{}, syntaxf("usage: relay reset | relay addr IPV4")
}

func parseTxID(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, syntaxf("bad transaction id %q", s)
	}
	return uint16(n), nil
}

func parseFields(args []string) (map[string]command.Value, error) {
	if len(args) == 0 {
		return nil, syntaxf("expected KEY=VALUE fields")
	}
	fields := make(map[string]command.Value, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, syntaxf("expected KEY=VALUE, got %q", arg)
		}
		fields[key] = ParseValue(raw)
	}
	return fields, nil
}

// ParseValue interprets a field value literal.
func ParseValue(s string) command.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return command.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return command.Float(f)
	}
	switch strings.ToLower(s) {
	case "true":
		return command.Bool(true)
	case "false":
		return command.Bool(false)
	case "null", "nil":
		return command.Nil()
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return command.String(u)
		}
	}
	return command.String(s)
}

// split breaks a line on whitespace, keeping double-quoted runs together.
func split(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		hasTok  bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			cur.WriteRune(r)
			escaped = true
		case r == '"':
			cur.WriteRune(r)
			inQuote = !inQuote
			hasTok = true
		case !inQuote && (r == ' ' || r == '\t'):
			if hasTok {
				args = append(args, cur.String())
				cur.Reset()
				hasTok = false
			}
		default:
			cur.WriteRune(r)
			hasTok = true
		}
	}
	if inQuote {
		return nil, syntaxf("unterminated quote")
	}
	if hasTok {
		args = append(args, cur.String())
	}
	return args, nil
}
