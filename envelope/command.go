package envelope

import "fmt"

// Command is the transport-level operation carried by an envelope.
type Command uint8

const (
	ExecNow Command = iota + 1
	AbortScript
	AppendFile
	RemoveFile
	ExecuteFile
	DownloadFile
	ListStorage
	ClearStorage
	DisableStorage
	EnableStorage
	SetAddress
	GetTime
	SetTime
	ResetRelay
	OK
	NOK
	FileInfo
)

var commandNames = [...]string{
	ExecNow:        "exec-now",
	AbortScript:    "abort-script",
	AppendFile:     "append-file",
	RemoveFile:     "remove-file",
	ExecuteFile:    "execute-file",
	DownloadFile:   "download-file",
	ListStorage:    "list-storage",
	ClearStorage:   "clear-storage",
	DisableStorage: "disable-storage",
	EnableStorage:  "enable-storage",
	SetAddress:     "set-address",
	GetTime:        "get-time",
	SetTime:        "set-time",
	ResetRelay:     "reset-relay",
	OK:             "ok",
	NOK:            "nok",
	FileInfo:       "file-info",
}

// Commands returns every command in wire order.
func Commands() []Command {
	out := make([]Command, 0, len(commandNames)-1)
	for c := ExecNow; c <= FileInfo; c++ {
		out = append(out, c)
	}
	return out
}

// Valid reports whether c is a known command byte.
func (c Command) Valid() bool {
	return c >= ExecNow && c <= FileInfo
}

// CarriesFrame reports whether the frame region is meaningful for c.
func (c Command) CarriesFrame() bool {
	return c == ExecNow || c == AppendFile
}

func (c Command) String() string {
	if c.Valid() {
		return commandNames[c]
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// ParseCommand looks a command up by name.
func ParseCommand(name string) (Command, error) {
	for c := ExecNow; c <= FileInfo; c++ {
		if commandNames[c] == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// MarshalText implements encoding.TextMarshaler.
func (c Command) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCommand, uint8(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Command) UnmarshalText(text []byte) error {
	parsed, err := ParseCommand(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
