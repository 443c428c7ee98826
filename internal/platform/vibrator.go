package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrNoVibrator is returned when no usable vibrator is found.
var ErrNoVibrator = errors.New("no vibrator")

// VibratorCandidates are the sysfs locations probed in order.
var VibratorCandidates = []string{
	"/sys/class/leds/vibrator",
	"/sys/class/timed_output/vibrator",
}

type vibratorKind int

const (
	// LED class transient trigger: write duration then activate.
	vibratorLED vibratorKind = iota + 1
	// Android timed_output: write the duration to enable.
	vibratorTimedOutput
)

// Vibrator is a keyhandler.Haptics driving a sysfs vibrator.
type Vibrator struct {
	dir  string
	kind vibratorKind
}

// OpenVibrator returns the vibrator at dir, or ErrNoVibrator when dir has
// neither interface.
func OpenVibrator(dir string) (*Vibrator, error) {
	switch {
	case writable(filepath.Join(dir, "activate")) && writable(filepath.Join(dir, "duration")):
		return &Vibrator{dir: dir, kind: vibratorLED}, nil
	case writable(filepath.Join(dir, "enable")):
		return &Vibrator{dir: dir, kind: vibratorTimedOutput}, nil
	default:
		return nil, fmt.Errorf("%s: %w", dir, ErrNoVibrator)
	}
}

// ProbeVibrator opens dir, or the first working candidate when dir is empty.
func ProbeVibrator(dir string) (*Vibrator, error) {
	if dir != "" {
		return OpenVibrator(dir)
	}
	for _, c := range VibratorCandidates {
		if v, err := OpenVibrator(c); err == nil {
			return v, nil
		}
	}
	return nil, ErrNoVibrator
}

// Dir returns the sysfs directory.
func (v *Vibrator) Dir() string { return v.dir }

// Pulse implements keyhandler.Haptics. It starts the vibration and returns;
// the kernel stops it after d.
func (v *Vibrator) Pulse(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := strconv.FormatInt(d.Milliseconds(), 10)
	switch v.kind {
	case vibratorLED:
		if err := writeAttr(v.dir, "duration", ms); err != nil {
			return err
		}
		return writeAttr(v.dir, "activate", "1")
	default:
		return writeAttr(v.dir, "enable", ms)
	}
}

func writeAttr(dir, name, value string) error {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), 0); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// LogHaptics only logs pulses.
type LogHaptics struct {
	Logger *slog.Logger
}

// Pulse implements keyhandler.Haptics.
func (l LogHaptics) Pulse(_ context.Context, d time.Duration) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("haptic pulse", "duration", d)
	return nil
}
