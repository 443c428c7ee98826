package evdev

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl request encoding (Linux _IOC macro).
const (
	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, typ, nr, size uint32) uint {
	return uint(dir<<30 | size<<16 | typ<<8 | nr)
}

var (
	// EVIOCGRAB = _IOW('E', 0x90, int)
	eviocGrab = ioc(iocWrite, 'E', 0x90, 4)
)

// EVIOCGNAME(len) = _IOC(_IOC_READ, 'E', 0x06, len)
func eviocGName(size int) uint {
	return ioc(iocRead, 'E', 0x06, uint32(size))
}

// Options configures a Reader.
type Options struct {
	// Grab takes the device exclusively so its events do not also reach
	// other consumers.
	Grab   bool
	Logger *slog.Logger
}

// Reader reads key events from one device node.
type Reader struct {
	path   string
	name   string
	file   *os.File
	grab   bool
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens an input device.
func Open(path string, opts Options) (*Reader, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open input device: %w", err)
	}

	r, err := newReader(f, path, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.logger.Info("input device opened", "name", r.name, "grab", r.grab)
	return r, nil
}

func newReader(f *os.File, path string, opts Options) (*Reader, error) {
	r := &Reader{
		path:   path,
		file:   f,
		logger: opts.Logger.With("device", path),
	}
	r.name = deviceName(f)

	if opts.Grab {
		if err := setGrab(f, true); err != nil {
			return nil, fmt.Errorf("grab input device: %w", err)
		}
		r.grab = true
	}
	return r, nil
}

// Path returns the device node path.
func (r *Reader) Path() string { return r.path }

// Name returns the kernel device name, or the path if it is unknown.
func (r *Reader) Name() string { return r.name }

// Run reads until ctx is done or the device fails, calling sink for every
// key transition. The device is closed on return.
func (r *Reader) Run(ctx context.Context, sink func(Key)) error {
	stop := context.AfterFunc(ctx, func() { r.Close() })
	defer stop()
	defer r.Close()

	err := ReadKeys(r.file, r.path, sink)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close releases the grab and closes the device.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		if r.grab {
			_ = setGrab(r.file, false)
		}
		r.closeErr = r.file.Close()
	})
	return r.closeErr
}

// ReadKeys decodes input events from src until it fails, calling sink for
// every key transition. io.EOF is reported as nil.
func ReadKeys(src io.Reader, device string, sink func(Key)) error {
	dec := NewDecoder(device)
	buf := make([]byte, EventSize)
	for {
		if _, err := io.ReadFull(src, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input event: %w", err)
		}
		ev, err := DecodeEvent(buf)
		if err != nil {
			continue
		}
		if key, ok := dec.Feed(ev); ok {
			sink(key)
		}
	}
}

// control runs fn on the raw descriptor. f.Fd() must not be used: it puts
// the file in blocking mode, after which Close no longer interrupts a
// pending Read.
func control(f *os.File, fn func(fd uintptr) error) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) { opErr = fn(fd) }); err != nil {
		return err
	}
	return opErr
}

func setGrab(f *os.File, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return control(f, func(fd uintptr) error {
		return unix.IoctlSetInt(int(fd), eviocGrab, v)
	})
}

func deviceName(f *os.File) string {
	buf := make([]byte, 256)
	err := control(f, func(fd uintptr) error {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(eviocGName(len(buf))), uintptr(unsafe.Pointer(&buf[0])))
		if errno != 0 {
			return errno
		}
		return nil
	})
	if err != nil {
		return f.Name()
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	if len(buf) == 0 {
		return f.Name()
	}
	return string(buf)
}
