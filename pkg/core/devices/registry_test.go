package devices

import (
	"context"
	"errors"
	"testing"
)

type fakeEnumerator struct {
	inputs  []Device
	outputs []Device
	err     error
}

func (f *fakeEnumerator) Inputs(ctx context.Context) ([]Device, error) {
	return f.inputs, f.err
}

func (f *fakeEnumerator) Outputs(ctx context.Context) ([]Device, error) {
	return f.outputs, f.err
}

func TestRefreshCachesDevices(t *testing.T) {
	enum := &fakeEnumerator{
		inputs:  []Device{{ID: "mic0", Label: "Built-in Mic", Kind: KindInput, Default: true}},
		outputs: []Device{{ID: "spk0", Label: "Speakers", Kind: KindOutput, Default: true}},
	}
	r := NewRegistry(enum, nil)

	if !r.Refresh(context.Background()) {
		t.Fatal("first refresh should report a change")
	}
	if got := r.ListInputs(); len(got) != 1 || got[0].ID != "mic0" {
		t.Fatalf("unexpected inputs: %+v", got)
	}
	if got := r.ListOutputs(); len(got) != 1 || got[0].ID != "spk0" {
		t.Fatalf("unexpected outputs: %+v", got)
	}

	if r.Refresh(context.Background()) {
		t.Fatal("unchanged device set should not report a change")
	}
}

func TestEnumerationFailureYieldsEmptyLists(t *testing.T) {
	enum := &fakeEnumerator{err: errors.New("no backend")}
	r := NewRegistry(enum, nil)
	r.Refresh(context.Background())

	if got := r.ListInputs(); len(got) != 0 {
		t.Fatalf("expected empty inputs on failure, got %+v", got)
	}
	if got := r.ListOutputs(); len(got) != 0 {
		t.Fatalf("expected empty outputs on failure, got %+v", got)
	}
}

func TestOnChangeFiresOnDiff(t *testing.T) {
	enum := &fakeEnumerator{inputs: []Device{{ID: "mic0", Kind: KindInput}}}
	r := NewRegistry(enum, nil)
	r.Refresh(context.Background())

	fired := 0
	r.OnChange(func() { fired++ })

	// Same set: no notification
	r.Refresh(context.Background())
	if fired != 0 {
		t.Fatalf("callback fired %d times for unchanged set", fired)
	}

	// Hot-plug: a second mic appears
	enum.inputs = append(enum.inputs, Device{ID: "usb1", Kind: KindInput})
	r.Refresh(context.Background())
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
}

func TestParseAVFoundationAudio(t *testing.T) {
	out := `[AVFoundation indev @ 0x7f8] AVFoundation video devices:
[AVFoundation indev @ 0x7f8] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f8] AVFoundation audio devices:
[AVFoundation indev @ 0x7f8] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x7f8] [1] External USB Mic
: Input/output error`

	devices := parseAVFoundationAudio(out)
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d: %+v", len(devices), devices)
	}
	if devices[0].ID != "0" || devices[0].Label != "MacBook Pro Microphone" || !devices[0].Default {
		t.Fatalf("unexpected first device: %+v", devices[0])
	}
	if devices[1].ID != "1" || devices[1].Label != "External USB Mic" || devices[1].Default {
		t.Fatalf("unexpected second device: %+v", devices[1])
	}
	for _, d := range devices {
		if d.Kind != KindInput {
			t.Fatalf("device %s has kind %q, want input", d.ID, d.Kind)
		}
	}
}

func TestParsePulseList(t *testing.T) {
	out := `Auto-detected sources for pulse:
  alsa_input.pci-0000_00_1f.3.analog-stereo [Built-in Audio Analog Stereo]
* alsa_input.usb-Blue_Yeti.analog-stereo [Yeti Stereo Microphone]
`
	devices := parsePulseList(out, KindInput)
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d: %+v", len(devices), devices)
	}
	if devices[0].Default {
		t.Fatal("first device should not be default")
	}
	if !devices[1].Default {
		t.Fatal("starred device should be default")
	}
	if devices[1].ID != "alsa_input.usb-Blue_Yeti.analog-stereo" {
		t.Fatalf("unexpected id: %q", devices[1].ID)
	}
	if devices[1].Label != "Yeti Stereo Microphone" {
		t.Fatalf("unexpected label: %q", devices[1].Label)
	}
}

func TestFFmpegEnumeratorLinux(t *testing.T) {
	e := &FFmpegEnumerator{
		goos: "linux",
		run: func(ctx context.Context, args ...string) (string, error) {
			if args[1] == "-sources" {
				return "Auto-detected sources for pulse:\n* mic.analog [Mic]\n", nil
			}
			return "Auto-detected sinks for pulse:\n* sink.analog [Speakers]\n", nil
		},
	}

	inputs, err := e.Inputs(context.Background())
	if err != nil {
		t.Fatalf("Inputs failed: %v", err)
	}
	if len(inputs) != 1 || inputs[0].ID != "mic.analog" {
		t.Fatalf("unexpected inputs: %+v", inputs)
	}

	outputs, err := e.Outputs(context.Background())
	if err != nil {
		t.Fatalf("Outputs failed: %v", err)
	}
	if len(outputs) != 1 || outputs[0].Kind != KindOutput {
		t.Fatalf("unexpected outputs: %+v", outputs)
	}
}

func TestFFmpegEnumeratorDarwinOutputsDefault(t *testing.T) {
	e := &FFmpegEnumerator{goos: "darwin"}
	outputs, err := e.Outputs(context.Background())
	if err != nil {
		t.Fatalf("Outputs failed: %v", err)
	}
	if len(outputs) != 1 || !outputs[0].Default {
		t.Fatalf("expected single default output, got %+v", outputs)
	}
}
