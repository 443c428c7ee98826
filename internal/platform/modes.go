package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"gestured/internal/dispatch"
)

const (
	feedbackDest      = "org.sigxcpu.Feedback"
	feedbackPath      = dbus.ObjectPath("/org/sigxcpu/Feedback")
	feedbackInterface = "org.sigxcpu.Feedback"
)

// FilterTarget names a bus method that takes the filter name as its only
// argument.
type FilterTarget struct {
	Dest   string
	Path   dbus.ObjectPath
	Method string
}

// FeedbackModes is a keyhandler.ModeController. Ringer modes map onto the
// feedbackd profile; interruption filters go to an optional FilterTarget.
type FeedbackModes struct {
	feedback dbus.BusObject
	filter   dbus.BusObject
	method   string
	logger   *slog.Logger
}

// NewFeedbackModes builds a controller on the session bus connection.
// A nil conn or disabled feedbackd leaves ringer changes log-only; an
// empty target.Dest does the same for filters.
func NewFeedbackModes(conn Conn, feedbackd bool, target FilterTarget, logger *slog.Logger) *FeedbackModes {
	if logger == nil {
		logger = slog.Default()
	}
	m := &FeedbackModes{logger: logger}
	if conn == nil {
		return m
	}
	if feedbackd {
		m.feedback = conn.Object(feedbackDest, feedbackPath)
	}
	if target.Dest != "" {
		m.filter = conn.Object(target.Dest, target.Path)
		m.method = target.Method
	}
	return m
}

// ProfileFor returns the feedbackd profile for a ringer mode.
func ProfileFor(mode dispatch.RingerMode) (string, error) {
	switch mode {
	case dispatch.RingerNormal:
		return "full", nil
	case dispatch.RingerVibrate:
		return "quiet", nil
	case dispatch.RingerSilent:
		return "silent", nil
	default:
		return "", fmt.Errorf("unknown ringer mode %d", mode)
	}
}

// SetRingerMode implements keyhandler.ModeController.
func (m *FeedbackModes) SetRingerMode(ctx context.Context, mode dispatch.RingerMode) error {
	profile, err := ProfileFor(mode)
	if err != nil {
		return err
	}
	if m.feedback == nil {
		m.logger.Info("ringer mode requested", "ringer", mode.String(), "profile", profile)
		return nil
	}
	call := m.feedback.CallWithContext(ctx, propertiesInterface+".Set", 0,
		feedbackInterface, "Profile", dbus.MakeVariant(profile))
	if call.Err != nil {
		return fmt.Errorf("set feedback profile %s: %w", profile, call.Err)
	}
	return nil
}

// SetInterruptionFilter implements keyhandler.ModeController.
func (m *FeedbackModes) SetInterruptionFilter(ctx context.Context, f dispatch.Filter) error {
	if m.filter == nil {
		m.logger.Info("interruption filter requested", "filter", f.String())
		return nil
	}
	if call := m.filter.CallWithContext(ctx, m.method, 0, f.String()); call.Err != nil {
		return fmt.Errorf("set interruption filter %s: %w", f, call.Err)
	}
	return nil
}
