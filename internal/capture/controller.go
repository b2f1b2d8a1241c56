package capture

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/rollcall/internal/common"
)

// DefaultQuality is the JPEG quality of captured photos.
const DefaultQuality = 90

// State is the lifecycle state of a Controller.
type State string

// Controller states.
const (
	StateIdle     State = "idle"
	StateActive   State = "active"
	StateCaptured State = "captured"
	StateClosed   State = "closed"
)

// Image is an encoded still taken from the camera.
type Image struct {
	CapturedAt  time.Time
	ID          string
	ContentType string
	Data        []byte
	Width       int
	Height      int
}

// Filename returns the upload file name of the image.
func (i Image) Filename() string {
	return "attendance-" + i.ID + ".jpg"
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithQuality sets the JPEG quality, 1 to 100.
func WithQuality(quality int) ControllerOption {
	return func(c *Controller) {
		if quality >= 1 && quality <= 100 {
			c.quality = quality
		}
	}
}

// WithClock overrides time.Now for capture timestamps.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// Controller owns one camera for the duration of a capture.
type Controller struct {
	device  Device
	stream  Stream
	now     func() time.Time
	image   *Image
	state   State
	quality int
	mu      sync.Mutex
}

// NewController creates an idle controller for device.
func NewController(device Device, opts ...ControllerOption) *Controller {
	c := &Controller{
		device:  device,
		state:   StateIdle,
		quality: DefaultQuality,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Image returns the captured photo, if any.
func (c *Controller) Image() (Image, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.image == nil {
		return Image{}, false
	}
	return *c.image, true
}

// Open starts the camera stream.
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateActive:
		return nil
	case StateIdle, StateClosed:
	default:
		return fmt.Errorf("%w: open camera from %s", common.ErrInvalidTransition, c.state)
	}

	stream, err := c.device.Open(ctx)
	if err != nil {
		slog.Warn("Camera unavailable", "device", c.device.Name(), "error", err)
		return err
	}
	c.stream = stream
	c.image = nil
	c.state = StateActive
	slog.Debug("Camera opened", "device", c.device.Name())
	return nil
}

// Capture freezes the current frame as a JPEG and releases the stream.
// Failures leave the controller state unchanged.
func (c *Controller) Capture() (Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateActive || c.stream == nil {
		return Image{}, fmt.Errorf("%w: camera is %s", common.ErrNotReady, c.state)
	}

	frame, err := c.stream.Frame()
	if err != nil {
		return Image{}, err
	}
	bounds := frame.Bounds()
	if bounds.Empty() {
		return Image{}, fmt.Errorf("%w: empty frame", common.ErrNotReady)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: c.quality}); err != nil {
		return Image{}, fmt.Errorf("encode frame: %w", err)
	}

	img := Image{
		ID:          uuid.NewString(),
		Data:        buf.Bytes(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ContentType: "image/jpeg",
		CapturedAt:  c.now(),
	}

	_ = c.releaseLocked()
	c.image = &img
	c.state = StateCaptured
	slog.Debug("Photo captured", "image_id", img.ID, "width", img.Width, "height", img.Height, "bytes", len(img.Data))
	return img, nil
}

// Retake discards the captured photo and reopens the stream.
func (c *Controller) Retake(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCaptured {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: retake from %s", common.ErrInvalidTransition, state)
	}
	c.image = nil
	c.state = StateIdle
	c.mu.Unlock()

	return c.Open(ctx)
}

// Close releases the camera. It is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.releaseLocked()
	c.state = StateClosed
	return err
}

func (c *Controller) releaseLocked() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	if err != nil {
		slog.Warn("Failed to release camera", "device", c.device.Name(), "error", err)
	}
	return err
}
