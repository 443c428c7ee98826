package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"

	"gestured/internal/gate"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	logindManage = "org.freedesktop.login1.Manager"
)

// ErrNotHeld is returned when releasing an inhibitor that is not held.
var ErrNotHeld = errors.New("inhibitor not held")

// Inhibitor is a gate.WakeLock backed by a logind sleep inhibitor. Holding
// the lock means holding the file descriptor logind returned.
type Inhibitor struct {
	obj     dbus.BusObject
	who     string
	why     string
	timeout time.Duration

	mu sync.Mutex
	fd int
}

var _ gate.WakeLock = (*Inhibitor)(nil)

// NewInhibitor returns a sleep inhibitor on the system bus connection.
func NewInhibitor(conn Conn, who, why string) *Inhibitor {
	return &Inhibitor{
		obj:     conn.Object(logindDest, logindPath),
		who:     who,
		why:     why,
		timeout: 2 * time.Second,
		fd:      -1,
	}
}

// Acquire takes a blocking sleep inhibitor. Acquiring twice is a no-op.
func (i *Inhibitor) Acquire() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fd >= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
	defer cancel()

	var fd dbus.UnixFD
	call := i.obj.CallWithContext(ctx, logindManage+".Inhibit", 0, "sleep", i.who, i.why, "block")
	if call.Err != nil {
		return fmt.Errorf("inhibit sleep: %w", call.Err)
	}
	if err := call.Store(&fd); err != nil {
		return fmt.Errorf("inhibit sleep: %w", err)
	}
	i.fd = int(fd)
	return nil
}

// Release closes the inhibitor descriptor, letting the system sleep again.
func (i *Inhibitor) Release() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.fd < 0 {
		return ErrNotHeld
	}
	fd := i.fd
	i.fd = -1
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close inhibitor: %w", err)
	}
	return nil
}

// Held reports whether the inhibitor is held.
func (i *Inhibitor) Held() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.fd >= 0
}
