package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// captureMode is the strategy for opening a device: loopback of an output
// endpoint or regular capture of an input endpoint.
type captureMode interface {
	deviceType() malgo.DeviceType
	String() string
}

type loopbackMode struct{}

func (loopbackMode) deviceType() malgo.DeviceType { return malgo.Loopback }
func (loopbackMode) String() string               { return "loopback" }

type microphoneMode struct{}

func (microphoneMode) deviceType() malgo.DeviceType { return malgo.Capture }
func (microphoneMode) String() string               { return "capture" }

func captureModeFor(t SourceType) (captureMode, error) {
	switch t {
	case SourceSystemOutput:
		return loopbackMode{}, nil
	case SourceMicrophone:
		return microphoneMode{}, nil
	default:
		return nil, fmt.Errorf("source type %q cannot be captured", t)
	}
}

type sinkRef struct {
	SampleSink
}

// malgoCapture delivers float32 samples at the device's native rate and
// channel count. The data callback runs on the driver thread and never blocks.
type malgoCapture struct {
	source AudioSource
	mode   captureMode
	logger *slog.Logger

	device *malgo.Device
	format StreamFormat

	sink     atomic.Pointer[sinkRef]
	stopping atomic.Bool
	scratch  []float32
	once     sync.Once
}

func newMalgoCapture(ctx *malgo.AllocatedContext, source AudioSource, mode captureMode, id malgo.DeviceID) (*malgoCapture, error) {
	c := &malgoCapture{
		source: source,
		mode:   mode,
		logger: slog.Default().With("source_id", source.ID, "source_type", source.Type),
	}

	cfg := malgo.DefaultDeviceConfig(mode.deviceType())
	cfg.Capture.Format = malgo.FormatF32
	// Zero channels and rate keep the device's native layout.
	cfg.Capture.Channels = 0
	cfg.SampleRate = 0
	cfg.Capture.DeviceID = id.Pointer()

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
		Stop: c.onStop,
	}

	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("init %s device: %w", mode, err)
	}
	c.device = dev
	c.format = StreamFormat{
		SampleRate:  int(dev.SampleRate()),
		NumChannels: int(dev.CaptureChannels()),
	}
	if !c.format.valid() {
		dev.Uninit()
		return nil, fmt.Errorf("device reported unusable format %+v", c.format)
	}

	c.logger.Debug("Capture device opened", "mode", mode.String(), "sample_rate", c.format.SampleRate, "channels", c.format.NumChannels)
	return c, nil
}

func (c *malgoCapture) Source() AudioSource { return c.source }

func (c *malgoCapture) Format() StreamFormat { return c.format }

func (c *malgoCapture) Start(sink SampleSink) error {
	c.sink.Store(&sinkRef{sink})
	if err := c.device.Start(); err != nil {
		c.sink.Store(nil)
		return fmt.Errorf("start %s device: %w", c.mode, err)
	}
	return nil
}

func (c *malgoCapture) Stop() error {
	c.stopping.Store(true)
	c.sink.Store(nil)
	if !c.device.IsStarted() {
		return nil
	}
	return c.device.Stop()
}

func (c *malgoCapture) Close() error {
	c.once.Do(func() {
		c.stopping.Store(true)
		c.sink.Store(nil)
		c.device.Uninit()
	})
	return nil
}

func (c *malgoCapture) onData(_, input []byte, frameCount uint32) {
	ref := c.sink.Load()
	if ref == nil {
		return
	}

	n := min(int(frameCount)*c.format.NumChannels, len(input)/4)
	samples := grow(&c.scratch, n)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(input[4*i:]))
	}
	ref.Write(samples)
}

// onStop fires when the driver stops the device. Outside of Stop this means
// the endpoint went away; the source then starves and is mixed as silence.
func (c *malgoCapture) onStop() {
	if !c.stopping.Load() {
		c.logger.Warn("Capture device stopped unexpectedly, source will be silent")
	}
}
