// Package server defines the value objects shared by the cache, the
// poller and the websocket gateway: server addresses, player rosters
// and observed statuses.
package server

import (
	"fmt"
	"net/netip"
)

// AddressError is returned when an IP or port cannot form a valid
// server address.
type AddressError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *AddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %s", e.Input, e.Reason)
}

// Address identifies a single game server by its IPv4 address and UDP
// port. Addresses are comparable and can be used as map keys. The
// canonical string form is "<dotted-ip>:<port>".
type Address struct {
	ip   netip.Addr
	port uint16
}

// NewAddress builds an Address from an IPv4 address and a port in the
// range 1..65535.
func NewAddress(ip netip.Addr, port uint16) (Address, error) {
	ip = ip.Unmap()
	if !ip.Is4() {
		return Address{}, &AddressError{Input: ip.String(), Reason: "not an IPv4 address"}
	}
	if port == 0 {
		return Address{}, &AddressError{Input: ip.String() + ":0", Reason: "port must be in range 1..65535"}
	}
	return Address{ip: ip, port: port}, nil
}

// ParseAddress parses the canonical "<dotted-ip>:<port>" form. It is
// the inverse of String.
func ParseAddress(s string) (Address, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return Address{}, &AddressError{Input: s, Reason: err.Error()}
	}
	addr, err := NewAddress(ap.Addr(), ap.Port())
	if err != nil {
		return Address{}, &AddressError{Input: s, Reason: err.(*AddressError).Reason}
	}
	return addr, nil
}

// MustParseAddress is ParseAddress that panics on invalid input. For
// use in tests and static tables only.
func MustParseAddress(s string) Address {
	addr, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return addr
}

// IP returns the IPv4 address.
func (a Address) IP() netip.Addr { return a.ip }

// Port returns the UDP port.
func (a Address) Port() uint16 { return a.port }

// IsZero reports whether the address is the zero value. The zero
// Address is not a valid server address.
func (a Address) IsZero() bool { return a == Address{} }

// String formats the address in its canonical "<dotted-ip>:<port>"
// form.
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.ip, a.port)
}
