// Package ambience procedurally generates background-noise beds for
// roleplay scenes: a looping noise buffer shaped by a low-pass filter,
// with an optional low drone for the tense preset.
package ambience

import (
	"math"
	"math/rand"
	"sync"
)

// Kind selects an ambience preset.
type Kind string

const (
	// None disables ambience.
	None Kind = ""
	// Quiet is a faint room tone.
	Quiet Kind = "quiet"
	// Office is a mid-band office hum.
	Office Kind = "office"
	// Intense is a dark rumble with a low drone underneath.
	Intense Kind = "intense"
)

const noiseLoopSeconds = 2

// preset describes how one ambience kind is rendered.
type preset struct {
	cutoffHz float64
	gain     float64
	droneHz  float64 // 0 disables the drone
	droneAmp float64
}

var presets = map[Kind]preset{
	Quiet:   {cutoffHz: 400, gain: 0.02},
	Office:  {cutoffHz: 800, gain: 0.04},
	Intense: {cutoffHz: 150, gain: 0.08, droneHz: 100, droneAmp: 0.02},
}

// Generator renders ambience audio on demand. The output mixer pulls
// samples through Render on its own tick; the generator itself owns no
// goroutine and no device.
//
// All methods are no-ops until Init is called.
type Generator struct {
	mu         sync.Mutex
	inited     bool
	sampleRate int
	noise      []float32
	pos        int

	kind       Kind
	active     bool
	volume     float64
	lpState    float64
	lpAlpha    float64
	gain       float64
	droneAmp   float64
	droneStep  float64
	dronePhase float64
}

// NewGenerator returns an uninitialized generator.
func NewGenerator() *Generator {
	return &Generator{volume: 1}
}

// Init prepares the generator for the given output sample rate and
// builds the shared noise loop. Calling Init again rebuilds the loop.
func (g *Generator) Init(sampleRate int) {
	if sampleRate <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	rng := rand.New(rand.NewSource(int64(sampleRate)))
	noise := make([]float32, sampleRate*noiseLoopSeconds)
	for i := range noise {
		noise[i] = float32(rng.Float64()*2 - 1)
	}
	g.noise = noise
	g.sampleRate = sampleRate
	g.inited = true
}

// Start switches to the given preset, silencing any previously running
// one first so presets never layer. Unknown kinds (including None)
// stop ambience. No-op before Init.
func (g *Generator) Start(kind Kind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inited {
		return
	}

	g.teardownLocked()

	p, ok := presets[kind]
	if !ok {
		return
	}

	// One-pole low-pass coefficient for the preset cutoff
	dt := 1 / float64(g.sampleRate)
	rc := 1 / (2 * math.Pi * p.cutoffHz)
	g.lpAlpha = dt / (rc + dt)
	g.gain = p.gain
	g.droneAmp = p.droneAmp
	g.droneStep = 2 * math.Pi * p.droneHz / float64(g.sampleRate)
	g.kind = kind
	g.active = true
}

// Stop silences ambience and releases preset state. The generator
// remains restartable. No-op before Init.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inited {
		return
	}
	g.teardownLocked()
}

func (g *Generator) teardownLocked() {
	g.active = false
	g.kind = None
	g.lpState = 0
	g.dronePhase = 0
	g.pos = 0
}

// SetVolume sets the master ambience gain (0 to 1), independent of
// agent speech volume. No-op before Init.
func (g *Generator) SetVolume(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.inited {
		return
	}
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	g.volume = v
}

// Kind returns the currently running preset, or None.
func (g *Generator) Kind() Kind {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kind
}

// Render mixes ambience samples into out. When no preset is running
// out is left untouched.
func (g *Generator) Render(out []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active || len(g.noise) == 0 {
		return
	}

	for i := range out {
		x := float64(g.noise[g.pos])
		g.pos++
		if g.pos >= len(g.noise) {
			g.pos = 0
		}
		g.lpState += g.lpAlpha * (x - g.lpState)
		s := g.lpState * g.gain

		if g.droneAmp > 0 {
			s += math.Sin(g.dronePhase) * g.droneAmp
			g.dronePhase += g.droneStep
			if g.dronePhase > 2*math.Pi {
				g.dronePhase -= 2 * math.Pi
			}
		}

		out[i] += float32(s * g.volume)
	}
}
