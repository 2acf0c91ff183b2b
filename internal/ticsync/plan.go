package ticsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wearablelab/ticsync/internal/device"
)

var (
	// ErrDeviceCountMismatch means the number of attached devices disagrees
	// with the operator-declared total. Fatal, never retried.
	ErrDeviceCountMismatch = errors.New("attached device count does not match requested total")

	// ErrDetectionTimeout means role classification did not converge within
	// the retry budget. Callers fall back to generic cleanup.
	ErrDetectionTimeout = errors.New("role detection did not converge")

	// ErrConfigConflict means mutually exclusive invocation shapes were
	// supplied together.
	ErrConfigConflict = errors.New("explicit server/client assignment and automatic inference are mutually exclusive")
)

// Role is what a device currently is within a session.
type Role int

const (
	RoleUnknown Role = iota
	RoleServer
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// Assignment binds a device to the recording profile it records with.
type Assignment struct {
	Serial  device.Serial `yaml:"serial"`
	Profile string        `yaml:"profile"`
}

// ParseAssignment parses the "serial=profile" operator syntax.
func ParseAssignment(s string) (Assignment, error) {
	serial, profile, ok := strings.Cut(s, "=")
	if !ok || serial == "" || profile == "" {
		return Assignment{}, fmt.Errorf("invalid assignment %q, expected serial=profile", s)
	}
	return Assignment{Serial: device.Serial(serial), Profile: profile}, nil
}

// SessionPlan maps every participating device to its role and recording
// profile. It is built once before orchestration and immutable afterward.
type SessionPlan struct {
	Server  Assignment   `yaml:"server"`
	Clients []Assignment `yaml:"clients"`
}

// Validate checks the structural invariants: exactly one server (enforced
// by the type), at least one client, unique serials, non-empty profiles.
func (p *SessionPlan) Validate() error {
	if p.Server.Serial == "" {
		return errors.New("session plan has no server device")
	}
	if len(p.Clients) == 0 {
		return errors.New("session plan has no client devices")
	}
	seen := map[device.Serial]bool{p.Server.Serial: true}
	for _, a := range append([]Assignment{p.Server}, p.Clients...) {
		if a.Profile == "" {
			return fmt.Errorf("device %s has no recording profile", a.Serial)
		}
	}
	for _, c := range p.Clients {
		if seen[c.Serial] {
			return fmt.Errorf("duplicate serial %s in session plan", c.Serial)
		}
		seen[c.Serial] = true
	}
	return nil
}

// ClientSerials returns the client serials in plan order.
func (p *SessionPlan) ClientSerials() []device.Serial {
	serials := make([]device.Serial, 0, len(p.Clients))
	for _, c := range p.Clients {
		serials = append(serials, c.Serial)
	}
	return serials
}

// TotalDevices is the number of devices the plan covers.
func (p *SessionPlan) TotalDevices() int {
	return len(p.Clients) + 1
}
