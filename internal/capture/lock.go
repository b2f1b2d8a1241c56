package capture

import (
	"context"
	"crypto/sha1" //nolint:gosec // lock file naming only
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Veraticus/rollcall/internal/common"
)

// LockedDevice guards a device with a lock file so only one process can hold
// the camera at a time.
type LockedDevice struct {
	device   Device
	lockPath string
}

// NewLockedDevice wraps device with a lock file in lockDir.
func NewLockedDevice(device Device, lockDir string) *LockedDevice {
	sum := sha1.Sum([]byte(device.Name())) //nolint:gosec // lock file naming only
	name := "camera-" + hex.EncodeToString(sum[:])[:12] + ".lock"
	return &LockedDevice{device: device, lockPath: filepath.Join(lockDir, name)}
}

// Name implements Device.
func (d *LockedDevice) Name() string {
	return d.device.Name()
}

// LockPath returns the lock file used for the device.
func (d *LockedDevice) LockPath() string {
	return d.lockPath
}

// Open implements Device. A camera held elsewhere is common.ErrDeviceUnavailable.
func (d *LockedDevice) Open(ctx context.Context) (Stream, error) {
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("%w: lock dir: %w", common.ErrDeviceUnavailable, err)
	}

	lock := flock.New(d.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire camera lock: %w", common.ErrDeviceUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: camera %s is in use", common.ErrDeviceUnavailable, d.device.Name())
	}

	stream, err := d.device.Open(ctx)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &lockedStream{Stream: stream, lock: lock}, nil
}

type lockedStream struct {
	Stream
	lock *flock.Flock
	once sync.Once
}

func (s *lockedStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Stream.Close()
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			slog.Warn("Failed to release camera lock", "path", s.lock.Path(), "error", unlockErr)
			if err == nil {
				err = unlockErr
			}
		}
	})
	return err
}
