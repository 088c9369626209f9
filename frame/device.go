package frame

import "fmt"

// Device identifies an endpoint on the routing bus. The set is closed and
// shared by both ends of the link.
type Device uint8

const (
	PayloadA   Device = 1
	PayloadB   Device = 2
	PayloadC   Device = 3
	Controller Device = 4
	Ground     Device = 5
	Relay      Device = 6
)

var deviceNames = map[Device]string{
	PayloadA:   "payload-a",
	PayloadB:   "payload-b",
	PayloadC:   "payload-c",
	Controller: "controller",
	Ground:     "ground",
	Relay:      "relay",
}

// Devices returns every known device in wire order.
func Devices() []Device {
	return []Device{PayloadA, PayloadB, PayloadC, Controller, Ground, Relay}
}

// Valid reports whether d is a member of the device set.
func (d Device) Valid() bool {
	_, ok := deviceNames[d]
	return ok
}

func (d Device) String() string {
	if name, ok := deviceNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Device(%d)", uint8(d))
}

// ParseDevice looks a device up by name.
func ParseDevice(name string) (Device, error) {
	for d, n := range deviceNames {
		if n == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDevice, name)
}

// MarshalText implements encoding.TextMarshaler.
func (d Device) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDevice, uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Device) UnmarshalText(text []byte) error {
	parsed, err := ParseDevice(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
