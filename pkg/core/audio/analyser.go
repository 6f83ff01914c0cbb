package audio

import (
	"math"
	"sync"
)

// Analyser exposes frequency-domain data for live metering and
// visualization. It mirrors the Web Audio AnalyserNode contract:
// a fixed FFT size, exponential smoothing between reads, and byte
// output mapped from a decibel range.
//
// Analysers are read-only instrumentation. They sit beside the
// capture and playback paths and never affect gating or transmission.
type Analyser struct {
	mu        sync.Mutex
	fftSize   int
	ring      []float32
	writePos  int
	smoothed  []float64
	smoothing float64
	minDB     float64
	maxDB     float64
	window    []float64
}

// NewAnalyser creates an analyser with the given FFT size, which must
// be a power of two. Defaults match the Web Audio AnalyserNode:
// smoothing 0.8, decibel range [-100, -30].
func NewAnalyser(fftSize int) *Analyser {
	if fftSize <= 0 || fftSize&(fftSize-1) != 0 {
		fftSize = 256
	}
	window := make([]float64, fftSize)
	for i := range window {
		// Blackman window, as specified for AnalyserNode
		a := 2 * math.Pi * float64(i) / float64(fftSize)
		window[i] = 0.42 - 0.5*math.Cos(a) + 0.08*math.Cos(2*a)
	}
	return &Analyser{
		fftSize:   fftSize,
		ring:      make([]float32, fftSize),
		smoothed:  make([]float64, fftSize/2),
		smoothing: 0.8,
		minDB:     -100,
		maxDB:     -30,
		window:    window,
	}
}

// FFTSize returns the configured FFT size.
func (a *Analyser) FFTSize() int { return a.fftSize }

// BinCount returns the number of frequency bins (half the FFT size).
func (a *Analyser) BinCount() int { return a.fftSize / 2 }

// Push feeds time-domain samples into the analyser. Only the most
// recent FFTSize samples are retained.
func (a *Analyser) Push(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.writePos] = s
		a.writePos = (a.writePos + 1) % a.fftSize
	}
}

// ByteFrequencyData fills out with the current frequency magnitudes
// scaled to 0..255 over the analyser's decibel range. out is truncated
// or zero-padded to BinCount entries' worth of data; the fill count
// is returned.
func (a *Analyser) ByteFrequencyData(out []byte) int {
	mags := a.frequencyData()
	n := len(mags)
	if n > len(out) {
		n = len(out)
	}
	span := a.maxDB - a.minDB
	for i := 0; i < n; i++ {
		db := 20 * math.Log10(mags[i]+1e-40)
		v := math.Round(255 * (db - a.minDB) / span)
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return n
}

// MeanMagnitude returns the average of the byte frequency bins as a
// float in [0, 255]. This is the value the volume meters consume.
func (a *Analyser) MeanMagnitude() float64 {
	buf := make([]byte, a.BinCount())
	n := a.ByteFrequencyData(buf)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, b := range buf[:n] {
		sum += float64(b)
	}
	return sum / float64(n)
}

// frequencyData runs the FFT over the retained samples and applies
// inter-read smoothing. Returns linear magnitudes per bin.
func (a *Analyser) frequencyData() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.fftSize
	re := make([]float64, n)
	im := make([]float64, n)
	for i := 0; i < n; i++ {
		s := a.ring[(a.writePos+i)%n]
		re[i] = float64(s) * a.window[i]
	}
	fft(re, im)

	out := make([]float64, n/2)
	for i := range out {
		mag := math.Hypot(re[i], im[i]) / float64(n)
		a.smoothed[i] = a.smoothing*a.smoothed[i] + (1-a.smoothing)*mag
		out[i] = a.smoothed[i]
	}
	return out
}

// fft computes an in-place iterative radix-2 Cooley-Tukey transform.
// len(re) must be a power of two and len(im) must equal len(re).
func fft(re, im []float64) {
	n := len(re)
	// Bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j |= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wRe, wIm := math.Cos(ang), math.Sin(ang)
		for start := 0; start < n; start += length {
			curRe, curIm := 1.0, 0.0
			for k := 0; k < length/2; k++ {
				i, j := start+k, start+k+length/2
				tRe := re[j]*curRe - im[j]*curIm
				tIm := re[j]*curIm + im[j]*curRe
				re[j], im[j] = re[i]-tRe, im[i]-tIm
				re[i], im[i] = re[i]+tRe, im[i]+tIm
				curRe, curIm = curRe*wRe-curIm*wIm, curRe*wIm+curIm*wRe
			}
		}
	}
}
