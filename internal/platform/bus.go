// Package platform adapts gestured's collaborator interfaces to a Linux
// phone stack: iio-sensor-proxy for proximity, logind for wake locks,
// feedbackd for the ringer profile, a session bus signal for actions, and
// the sysfs vibrator.
package platform

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Conn is the subset of *dbus.Conn the adapters use.
type Conn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

var _ Conn = (*dbus.Conn)(nil)

// SystemBus connects to the shared system bus.
func SystemBus() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return conn, nil
}

// SessionBus connects to the shared session bus.
func SessionBus() (*dbus.Conn, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return conn, nil
}

// RequestName claims name on conn. It fails if another process owns it.
func RequestName(conn *dbus.Conn, name string) error {
	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", name)
	}
	return nil
}

const propertiesInterface = "org.freedesktop.DBus.Properties"
