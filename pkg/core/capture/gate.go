package capture

// Mode selects the transmit gating strategy.
type Mode string

const (
	// ModeVAD gates on frame loudness against a calibrated threshold.
	ModeVAD Mode = "vad"
	// ModePTT gates on an explicit push-to-talk control.
	ModePTT Mode = "ptt"
)

// GateConfig is a snapshot of the gating controls at the moment a
// frame is evaluated.
type GateConfig struct {
	Muted      bool
	Mode       Mode
	PTTPressed bool
	// Threshold is the minimum RMS loudness that passes in VAD mode.
	Threshold float64
}

// ShouldSend decides whether a captured frame is transmitted. Mute
// drops everything. Push-to-talk passes solely on the control state;
// the user's explicit intent to speak overrides loudness heuristics.
// VAD passes frames at or above the threshold. Pure function: no
// state, no side effects.
func ShouldSend(cfg GateConfig, rms float64) bool {
	if cfg.Muted {
		return false
	}
	if cfg.Mode == ModePTT {
		return cfg.PTTPressed
	}
	return rms >= cfg.Threshold
}
