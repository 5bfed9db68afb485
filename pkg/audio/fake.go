package audio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// fakeBlockFrames is the number of sample frames delivered per callback by a
// fake capture device, roughly matching the block size of real hardware.
const fakeBlockFrames = 1024

// FakePlatform implements [Platform] without hardware. It replays a fixed
// PCM buffer — loaded from a WAV file or supplied directly — through the
// capture callback, optionally paced at real time. Used by tests and the
// -fake demo mode.
type FakePlatform struct {
	pcm      []byte
	rate     uint32
	realtime bool
}

// Compile-time assertion that FakePlatform satisfies Platform.
var _ Platform = (*FakePlatform)(nil)

// NewFakePlatform creates a fake platform replaying the given S16LE mono PCM
// at rate. When realtime is true the callback is paced to the audio clock;
// otherwise blocks are delivered as fast as the consumer accepts them.
func NewFakePlatform(pcm []byte, rate uint32, realtime bool) *FakePlatform {
	return &FakePlatform{pcm: pcm, rate: rate, realtime: realtime}
}

// NewFakePlatformFromWAV creates a fake platform replaying the mono 16-bit
// PCM payload of the WAV file at path.
func NewFakePlatformFromWAV(path string, realtime bool) (*FakePlatform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("audio: read fake input: %w", err)
	}
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := floatToPCM16(s)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(uint16(v) >> 8)
	}
	return &FakePlatform{pcm: pcm, rate: uint32(rate), realtime: realtime}, nil
}

// Rate returns the replay sample rate in Hz. Callers should request this
// rate from the pipeline so frame timestamps line up with the PCM buffer.
func (f *FakePlatform) Rate() int { return int(f.rate) }

// Devices reports a single synthetic device.
func (f *FakePlatform) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake capture"}}, nil
}

// OpenCapture returns a capture device that replays the platform's PCM
// buffer. The requested sample rate is ignored; frames are delivered at the
// platform's configured rate, which exercises the resampler downstream.
func (f *FakePlatform) OpenCapture(_ *DeviceInfo, _ CaptureConfig, cb DataCallback) (CaptureDevice, error) {
	return &fakeCapture{
		pcm:      f.pcm,
		rate:     f.rate,
		realtime: f.realtime,
		cb:       cb,
		done:     make(chan struct{}),
	}, nil
}

// Close is a no-op.
func (f *FakePlatform) Close() error { return nil }

// fakeCapture replays a PCM buffer through the capture callback from a
// background goroutine.
type fakeCapture struct {
	pcm      []byte
	rate     uint32
	realtime bool
	cb       DataCallback

	// done is closed when the buffer is exhausted. It is not reset by Stop;
	// a restarted fake capture replays from the beginning.
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.Mutex
	stop    chan struct{}
	feeding sync.WaitGroup
	closed  bool
}

// Done reports when the fake device has replayed its whole buffer. Tests
// wait on this before asserting pipeline output.
func (c *fakeCapture) Done() <-chan struct{} { return c.done }

func (c *fakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("audio: fake capture is closed")
	}
	if c.stop != nil {
		return nil // already started
	}
	c.stop = make(chan struct{})
	stop := c.stop

	blockBytes := fakeBlockFrames * 2
	interval := time.Duration(fakeBlockFrames) * time.Second / time.Duration(c.rate)

	c.feeding.Add(1)
	go func() {
		defer c.feeding.Done()
		for pos := 0; pos < len(c.pcm); {
			select {
			case <-stop:
				return
			default:
			}
			end := pos + blockBytes
			if end > len(c.pcm) {
				end = len(c.pcm)
			}
			block := make([]byte, end-pos)
			copy(block, c.pcm[pos:end])
			c.cb(block, uint32(len(block)/2))
			pos = end
			if c.realtime {
				select {
				case <-stop:
					return
				case <-time.After(interval):
				}
			}
		}
		c.doneOnce.Do(func() { close(c.done) })
	}()
	return nil
}

func (c *fakeCapture) Stop() error {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		c.feeding.Wait()
	}
	return nil
}

func (c *fakeCapture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.Stop()
}
