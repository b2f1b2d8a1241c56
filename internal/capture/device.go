// Package capture acquires a classroom photo from a camera device.
package capture

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/rollcall/internal/common"
)

// Device opens live frame streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
	Name() string
}

// Stream is an open camera stream. Frame returns common.ErrNotReady until a
// frame has been produced.
type Stream interface {
	Frame() (image.Image, error)
	Close() error
}

var snapshotExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// FileDevice is a still camera backed by a snapshot file or a directory of
// snapshots. In directory mode the newest snapshot is the current frame.
type FileDevice struct {
	path string
}

// NewFileDevice creates a device reading from path.
func NewFileDevice(path string) *FileDevice {
	return &FileDevice{path: path}
}

// Name implements Device.
func (d *FileDevice) Name() string {
	return d.path
}

// Open implements Device.
func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(d.path); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrDeviceUnavailable, d.path, err)
	}
	return &fileStream{path: d.path}, nil
}

type fileStream struct {
	path   string
	mu     sync.Mutex
	closed bool
}

func (s *fileStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("%w: stream closed", common.ErrNotReady)
	}

	file, err := latestSnapshot(s.path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(file) //nolint:gosec // path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDeviceUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", common.ErrNotReady, filepath.Base(file), err)
	}
	return img, nil
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func latestSnapshot(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrDeviceUnavailable, err)
	}
	if !info.IsDir() {
		return path, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrDeviceUnavailable, err)
	}

	type snapshot struct {
		name    string
		modTime int64
	}
	var snapshots []snapshot
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := snapshotExtensions[strings.ToLower(filepath.Ext(entry.Name()))]; !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, snapshot{name: entry.Name(), modTime: fi.ModTime().UnixNano()})
	}
	if len(snapshots) == 0 {
		return "", fmt.Errorf("%w: no snapshot in %s", common.ErrNotReady, path)
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].modTime == snapshots[j].modTime {
			return snapshots[i].name > snapshots[j].name
		}
		return snapshots[i].modTime > snapshots[j].modTime
	})
	return filepath.Join(path, snapshots[0].name), nil
}
