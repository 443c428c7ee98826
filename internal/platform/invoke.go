package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"gestured/internal/action"
)

// ActionsInterface is the interface of the Invoke signal.
const ActionsInterface = "org.gestured.Actions"

// SignalInvoker is a keyhandler.ActionInvoker that broadcasts
// Invoke(s action, b from_keyguard) on the bus for an action engine to
// carry out.
type SignalInvoker struct {
	conn Conn
	path dbus.ObjectPath
}

// NewSignalInvoker emits from path on conn.
func NewSignalInvoker(conn Conn, path dbus.ObjectPath) *SignalInvoker {
	return &SignalInvoker{conn: conn, path: path}
}

// Invoke implements keyhandler.ActionInvoker.
func (s *SignalInvoker) Invoke(ctx context.Context, ref action.Ref, fromKeyguard bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.Emit(s.path, ActionsInterface+".Invoke", string(ref), fromKeyguard); err != nil {
		return fmt.Errorf("emit invoke %s: %w", ref, err)
	}
	return nil
}

// LogInvoker only logs actions. It stands in when no bus is available.
type LogInvoker struct {
	Logger *slog.Logger
}

// Invoke implements keyhandler.ActionInvoker.
func (l LogInvoker) Invoke(_ context.Context, ref action.Ref, fromKeyguard bool) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("invoke action", "action", string(ref), "from_keyguard", fromKeyguard)
	return nil
}
