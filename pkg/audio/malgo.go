package audio

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoPlatform implements [Platform] on top of the malgo (miniaudio)
// bindings, covering ALSA/PulseAudio, CoreAudio, and WASAPI with one code
// path.
type MalgoPlatform struct {
	ctx *malgo.AllocatedContext
}

// Compile-time assertion that MalgoPlatform satisfies Platform.
var _ Platform = (*MalgoPlatform)(nil)

// NewMalgoPlatform initialises the host audio backend.
func NewMalgoPlatform() (*MalgoPlatform, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init malgo context: %w", err)
	}
	return &MalgoPlatform{ctx: ctx}, nil
}

// Devices enumerates capture devices known to the host audio system.
func (m *MalgoPlatform) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate capture devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

// OpenCapture opens a capture stream delivering S16LE PCM blocks to cb.
func (m *MalgoPlatform) OpenCapture(device *DeviceInfo, cfg CaptureConfig, cb DataCallback) (CaptureDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate

	if device != nil {
		idBytes, err := hex.DecodeString(device.ID)
		if err != nil {
			return nil, fmt.Errorf("audio: invalid device ID %q: %w", device.ID, err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb(data, frameCount)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: open capture device: %w", err)
	}
	return &malgoCapture{device: dev}, nil
}

// Close releases the malgo context.
func (m *MalgoPlatform) Close() error {
	if err := m.ctx.Uninit(); err != nil {
		return fmt.Errorf("audio: uninit malgo context: %w", err)
	}
	m.ctx.Free()
	return nil
}

// malgoCapture wraps one malgo capture device.
type malgoCapture struct {
	device *malgo.Device

	mu     sync.Mutex
	closed bool
}

func (c *malgoCapture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("audio: start capture: %w", err)
	}
	return nil
}

func (c *malgoCapture) Stop() error {
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("audio: stop capture: %w", err)
	}
	return nil
}

func (c *malgoCapture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.device.Uninit()
	return nil
}
