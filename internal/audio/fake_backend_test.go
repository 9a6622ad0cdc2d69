package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const fakeBlock = 10 * time.Millisecond

// fakeDevice produces blocks of a constant per-channel value in real time.
type fakeDevice struct {
	source AudioSource
	format StreamFormat
	value  func(channel int) float32

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	started bool
	closed  bool
}

func (d *fakeDevice) Source() AudioSource  { return d.source }
func (d *fakeDevice) Format() StreamFormat { return d.format }

func (d *fakeDevice) Start(sink SampleSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("device closed")
	}
	d.started = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	frames := d.format.SampleRate * int(fakeBlock/time.Millisecond) / 1000
	block := make([]float32, frames*d.format.NumChannels)
	for i := range block {
		block[i] = d.value(i % d.format.NumChannels)
	}

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(fakeBlock)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sink.Write(block)
			}
		}
	}(d.stop, d.done)
	return nil
}

func (d *fakeDevice) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop = nil
	d.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return nil
}

func (d *fakeDevice) Close() error {
	d.Stop()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

type deviceSetup struct {
	format StreamFormat
	value  func(channel int) float32
	err    error
}

// fakeBackend opens fakeDevices described by setups, keyed by source ID.
type fakeBackend struct {
	sources []AudioSource
	listErr error
	setups  map[string]deviceSetup

	mu     sync.Mutex
	opened []*fakeDevice
	closed bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{setups: make(map[string]deviceSetup)}
}

func (b *fakeBackend) add(src AudioSource, setup deviceSetup) AudioSource {
	if setup.value == nil {
		setup.value = func(int) float32 { return 0.1 }
	}
	b.sources = append(b.sources, src)
	b.setups[src.ID] = setup
	return src
}

func (b *fakeBackend) ListSources() ([]AudioSource, error) {
	return b.sources, b.listErr
}

func (b *fakeBackend) OpenCapture(source AudioSource) (CaptureDevice, error) {
	setup, ok := b.setups[source.ID]
	if !ok {
		return nil, fmt.Errorf("unknown source %s", source.ID)
	}
	if setup.err != nil {
		return nil, setup.err
	}
	dev := &fakeDevice{source: source, format: setup.format, value: setup.value}
	b.mu.Lock()
	b.opened = append(b.opened, dev)
	b.mu.Unlock()
	return dev, nil
}

func (b *fakeBackend) GetType() BackendType { return "fake" }

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) openedDevices() []*fakeDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*fakeDevice(nil), b.opened...)
}

var (
	loopbackSource = AudioSource{ID: "out:01", Name: "Speakers", Type: SourceSystemOutput, IsDefault: true}
	micSource      = AudioSource{ID: "in:01", Name: "Headset Mic", Type: SourceMicrophone, IsDefault: true}
	mic2Source     = AudioSource{ID: "in:02", Name: "USB Mic", Type: SourceMicrophone}
)

func standardBackend() *fakeBackend {
	b := newFakeBackend()
	b.add(loopbackSource, deviceSetup{format: StreamFormat{SampleRate: 48000, NumChannels: 2}})
	b.add(micSource, deviceSetup{format: StreamFormat{SampleRate: 48000, NumChannels: 1}})
	b.add(mic2Source, deviceSetup{format: StreamFormat{SampleRate: 44100, NumChannels: 1}})
	return b
}
