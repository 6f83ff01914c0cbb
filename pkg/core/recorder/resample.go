package recorder

// Resample converts samples between rates by linear interpolation.
// Good enough for voice recordings; the live path never goes through
// it.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate <= 0 || toRate <= 0 || len(in) == 0 {
		return nil
	}
	if fromRate == toRate {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	n := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	out := make([]float32, n)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}
