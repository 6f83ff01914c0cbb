// Package devices enumerates audio input and output devices and
// notifies consumers when the device set changes. The registry never
// acquires a device itself; capture and playback own acquisition.
package devices

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind distinguishes capture devices from playback devices.
type Kind string

const (
	// KindInput is a capture (microphone) device.
	KindInput Kind = "input"
	// KindOutput is a playback (speaker) device.
	KindOutput Kind = "output"
)

// Device describes one enumerated audio device.
type Device struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Kind    Kind   `json:"kind"`
	Default bool   `json:"default,omitempty"`
}

// Enumerator lists the currently attached audio devices.
type Enumerator interface {
	Inputs(ctx context.Context) ([]Device, error)
	Outputs(ctx context.Context) ([]Device, error)
}

// Registry caches the device lists and polls for changes. Enumeration
// failures degrade to empty lists; device selection is a convenience,
// not session-critical.
type Registry struct {
	enum   Enumerator
	logger *slog.Logger

	mu       sync.Mutex
	inputs   []Device
	outputs  []Device
	onChange func()
	cancel   context.CancelFunc
}

// NewRegistry creates a registry backed by the given enumerator.
func NewRegistry(enum Enumerator, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{enum: enum, logger: logger}
}

// Refresh re-enumerates both device lists and reports whether either
// changed since the last refresh.
func (r *Registry) Refresh(ctx context.Context) bool {
	inputs, err := r.enum.Inputs(ctx)
	if err != nil {
		r.logger.Warn("input device enumeration failed", "error", err)
		inputs = nil
	}
	outputs, err := r.enum.Outputs(ctx)
	if err != nil {
		r.logger.Warn("output device enumeration failed", "error", err)
		outputs = nil
	}

	r.mu.Lock()
	changed := !sameDevices(r.inputs, inputs) || !sameDevices(r.outputs, outputs)
	r.inputs = inputs
	r.outputs = outputs
	cb := r.onChange
	r.mu.Unlock()

	if changed && cb != nil {
		cb()
	}
	return changed
}

// ListInputs returns the cached capture devices.
func (r *Registry) ListInputs() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Device(nil), r.inputs...)
}

// ListOutputs returns the cached playback devices.
func (r *Registry) ListOutputs() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Device(nil), r.outputs...)
}

// OnChange registers the callback invoked after a refresh that found a
// different device set. Only one callback is held; later calls replace
// earlier ones.
func (r *Registry) OnChange(cb func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = cb
}

// Watch polls for device changes at the given interval until ctx is
// cancelled or Close is called. The platform hot-plug event is not
// portable, so the registry diffs enumeration results instead.
func (r *Registry) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Refresh(ctx)
			}
		}
	}()
}

// Close stops the watch loop if one is running.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func sameDevices(a, b []Device) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
