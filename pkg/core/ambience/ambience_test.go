package ambience

import (
	"math"
	"testing"
)

func render(g *Generator, n int) []float32 {
	out := make([]float32, n)
	g.Render(out)
	return out
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func TestMethodsBeforeInitAreNoOps(t *testing.T) {
	g := NewGenerator()
	g.Start(Office)
	g.SetVolume(0.5)
	g.Stop()

	out := render(g, 1024)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %f, want silence before Init", i, s)
		}
	}
}

func TestStartProducesAudio(t *testing.T) {
	g := NewGenerator()
	g.Init(24000)
	g.Start(Office)

	if got := rms(render(g, 24000)); got == 0 {
		t.Fatal("expected non-silent output after Start")
	}
	if g.Kind() != Office {
		t.Fatalf("Kind = %q, want office", g.Kind())
	}
}

func TestStopSilencesAndIsRestartable(t *testing.T) {
	g := NewGenerator()
	g.Init(24000)
	g.Start(Quiet)
	render(g, 4096)

	g.Stop()
	if got := rms(render(g, 4096)); got != 0 {
		t.Fatalf("rms after Stop = %f, want 0", got)
	}
	if g.Kind() != None {
		t.Fatalf("Kind after Stop = %q, want none", g.Kind())
	}

	g.Start(Intense)
	if got := rms(render(g, 4096)); got == 0 {
		t.Fatal("expected audio after restart")
	}
}

func TestSwitchingPresetsDoesNotLayer(t *testing.T) {
	g := NewGenerator()
	g.Init(24000)
	g.Start(Intense)
	render(g, 24000)

	g.Start(Quiet)
	quiet := rms(render(g, 24000))

	h := NewGenerator()
	h.Init(24000)
	h.Start(Quiet)
	fresh := rms(render(h, 24000))

	if math.Abs(quiet-fresh) > fresh*0.1 {
		t.Fatalf("switched output rms %f differs from fresh quiet rms %f", quiet, fresh)
	}
}

func TestPresetLoudnessOrdering(t *testing.T) {
	levels := make(map[Kind]float64)
	for _, kind := range []Kind{Quiet, Office, Intense} {
		g := NewGenerator()
		g.Init(24000)
		g.Start(kind)
		render(g, 24000)
		levels[kind] = rms(render(g, 24000))
	}
	if !(levels[Quiet] < levels[Office] && levels[Office] < levels[Intense]) {
		t.Fatalf("unexpected loudness ordering: %v", levels)
	}
}

func TestSetVolumeScalesOutput(t *testing.T) {
	g := NewGenerator()
	g.Init(24000)
	g.Start(Office)
	render(g, 24000)
	loud := rms(render(g, 24000))

	g.SetVolume(0)
	if got := rms(render(g, 4096)); got != 0 {
		t.Fatalf("rms at volume 0 = %f, want 0", got)
	}

	g.SetVolume(1)
	if got := rms(render(g, 24000)); got < loud*0.5 {
		t.Fatalf("rms after volume restore = %f, want near %f", got, loud)
	}
}

func TestRenderMixesIntoExisting(t *testing.T) {
	g := NewGenerator()
	g.Init(24000)
	g.Start(Office)

	out := make([]float32, 256)
	for i := range out {
		out[i] = 0.25
	}
	g.Render(out)

	changed := false
	for _, s := range out {
		if s != 0.25 {
			changed = true
			break
		}
	}
	if !changed {
		t.Fatal("Render should add onto existing samples")
	}
}

func TestStartUnknownKindStops(t *testing.T) {
	g := NewGenerator()
	g.Init(24000)
	g.Start(Office)
	g.Start(None)
	if got := rms(render(g, 4096)); got != 0 {
		t.Fatalf("rms after Start(None) = %f, want 0", got)
	}
}
