package devices

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
)

// FFmpegEnumerator lists audio devices by shelling out to ffmpeg, the
// same binary the capture and playback subprocesses use.
type FFmpegEnumerator struct {
	goos string

	// run executes ffmpeg and returns its combined output. Replaced in
	// tests.
	run func(ctx context.Context, args ...string) (string, error)
}

// NewFFmpegEnumerator returns an enumerator for the current platform.
func NewFFmpegEnumerator() (*FFmpegEnumerator, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for device enumeration (install ffmpeg and ensure it is in PATH)")
	}
	switch runtime.GOOS {
	case "darwin", "linux":
	default:
		return nil, fmt.Errorf("device enumeration is not implemented for %s; supported platforms: darwin, linux", runtime.GOOS)
	}
	return &FFmpegEnumerator{goos: runtime.GOOS, run: runFFmpeg}, nil
}

func runFFmpeg(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	// Device listings go to stderr and ffmpeg exits non-zero on
	// darwin, so the exit status alone is not an error.
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		return string(out), nil
	}
	if err != nil {
		return "", fmt.Errorf("run ffmpeg: %w", err)
	}
	return "", nil
}

// Inputs lists capture devices.
func (e *FFmpegEnumerator) Inputs(ctx context.Context) ([]Device, error) {
	switch e.goos {
	case "darwin":
		out, err := e.run(ctx, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
		if err != nil {
			return nil, err
		}
		return parseAVFoundationAudio(out), nil
	case "linux":
		out, err := e.run(ctx, "-hide_banner", "-sources", "pulse")
		if err != nil {
			return nil, err
		}
		return parsePulseList(out, KindInput), nil
	default:
		return nil, fmt.Errorf("unsupported platform %s", e.goos)
	}
}

// Outputs lists playback devices. avfoundation cannot enumerate
// outputs, so darwin reports the system default only.
func (e *FFmpegEnumerator) Outputs(ctx context.Context) ([]Device, error) {
	switch e.goos {
	case "darwin":
		return []Device{{ID: "default", Label: "System Default", Kind: KindOutput, Default: true}}, nil
	case "linux":
		out, err := e.run(ctx, "-hide_banner", "-sinks", "pulse")
		if err != nil {
			return nil, err
		}
		return parsePulseList(out, KindOutput), nil
	default:
		return nil, fmt.Errorf("unsupported platform %s", e.goos)
	}
}

var avfAudioLine = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)

// parseAVFoundationAudio extracts the audio device section from the
// avfoundation -list_devices output.
func parseAVFoundationAudio(out string) []Device {
	var devices []Device
	inAudio := false
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "AVFoundation audio devices") {
			inAudio = true
			continue
		}
		if strings.Contains(line, "AVFoundation video devices") {
			inAudio = false
			continue
		}
		if !inAudio {
			continue
		}
		m := avfAudioLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		devices = append(devices, Device{
			ID:      m[1],
			Label:   strings.TrimSpace(m[2]),
			Kind:    KindInput,
			Default: len(devices) == 0,
		})
	}
	return devices
}

// parsePulseList parses ffmpeg -sources/-sinks pulse output. A leading
// asterisk marks the default device; the bracketed suffix is the
// human-readable label.
func parsePulseList(out string, kind Kind) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Auto-detected") {
			continue
		}
		isDefault := false
		if strings.HasPrefix(line, "*") {
			isDefault = true
			line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		}
		id := line
		label := line
		if i := strings.Index(line, "["); i >= 0 {
			id = strings.TrimSpace(line[:i])
			label = strings.TrimSuffix(strings.TrimSpace(line[i+1:]), "]")
		}
		if id == "" {
			continue
		}
		devices = append(devices, Device{ID: id, Label: label, Kind: kind, Default: isDefault})
	}
	return devices
}
