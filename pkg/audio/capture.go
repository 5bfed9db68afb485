package audio

// DataCallback receives one block of raw 16-bit signed little-endian PCM
// from a capture device. frameCount is the number of sample frames in data.
// The callback runs on the device's capture goroutine and must be cheap and
// non-blocking: no I/O, no network calls, no unbounded work.
type DataCallback func(data []byte, frameCount uint32)

// CaptureConfig describes the stream format requested from a capture device.
type CaptureConfig struct {
	// SampleRate in Hz. Zero lets the device pick its native rate; the
	// pipeline normalizes downstream either way.
	SampleRate uint32

	// Channels is the requested channel count. The pipeline expects 1.
	Channels uint32
}

// DeviceInfo identifies a capture device.
type DeviceInfo struct {
	// ID is an opaque platform-specific identifier.
	ID string

	// Name is the human-readable device name.
	Name string
}

// Platform abstracts the host audio system. It is an interface so that tests
// and the demo mode can supply a [FakePlatform] in place of real hardware.
//
// A Platform owns shared audio-system state; close it only after every
// capture device opened through it has been closed.
type Platform interface {
	// Devices enumerates the available capture devices.
	Devices() ([]DeviceInfo, error)

	// OpenCapture opens a capture stream on device (nil selects the system
	// default) with the requested format. cb is invoked once per hardware
	// block after [CaptureDevice.Start]. The returned device is stopped.
	OpenCapture(device *DeviceInfo, cfg CaptureConfig, cb DataCallback) (CaptureDevice, error)

	// Close releases the platform. Open devices become invalid.
	Close() error
}

// CaptureDevice is a single open capture stream. Not safe for concurrent
// use; the owning capture session serializes Start/Stop/Close.
type CaptureDevice interface {
	// Start begins delivering PCM blocks to the callback.
	Start() error

	// Stop halts delivery. The device may be started again.
	Stop() error

	// Close stops the device if needed and releases the hardware stream.
	// Close is idempotent.
	Close() error
}
