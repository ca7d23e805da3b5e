package testutil

import (
	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/dispatch"
	"github.com/hupe1980/vxbroker/engine"
	"github.com/hupe1980/vxbroker/router"
)

// Harness wires a Simulator to a Dispatcher and a Router the way the broker
// facade does, with delivery driven explicitly through Flush.
type Harness struct {
	Sim        *engine.Simulator
	Dispatcher *dispatch.Dispatcher
	Router     *router.Router
}

// Flush delivers every queued engine message and returns how many were delivered.
func (h *Harness) Flush() int { return h.Sim.Flush() }

// HarnessBuilder helps construct harnesses with fluent chaining for tests.
// Example:
//
//	h := NewHarnessBuilder().Manual().Archive(msgs...).Build()
type HarnessBuilder struct {
	simOpts []func(o *engine.SimulatorOptions)
}

// NewHarnessBuilder creates a builder for an automatic, ready simulator.
func NewHarnessBuilder() *HarnessBuilder { return &HarnessBuilder{} }

// Manual disables scripted responses (chainable).
func (b *HarnessBuilder) Manual() *HarnessBuilder {
	b.simOpts = append(b.simOpts, func(o *engine.SimulatorOptions) { o.Manual = true })
	return b
}

// NotReady starts the engine uninitialized (chainable).
func (b *HarnessBuilder) NotReady() *HarnessBuilder {
	b.simOpts = append(b.simOpts, func(o *engine.SimulatorOptions) { o.NotReady = true })
	return b
}

// Archive sets the canned history served to archive queries (chainable).
func (b *HarnessBuilder) Archive(msgs ...core.ArchiveMessage) *HarnessBuilder {
	b.simOpts = append(b.simOpts, func(o *engine.SimulatorOptions) { o.Archive = append(o.Archive, msgs...) })
	return b
}

// Devices overrides the devices reported for direction (chainable).
func (b *HarnessBuilder) Devices(direction core.DeviceDirection, devs ...core.AudioDevice) *HarnessBuilder {
	b.simOpts = append(b.simOpts, func(o *engine.SimulatorOptions) {
		if direction == core.DeviceOutput {
			o.OutputDevices = devs
		} else {
			o.InputDevices = devs
		}
	})
	return b
}

// Build returns the wired harness.
func (b *HarnessBuilder) Build() *Harness {
	sim := engine.NewSimulator(b.simOpts...)
	d := dispatch.New(sim)
	r := router.New(d)
	sim.OnEvent(r.Dispatch)
	return &Harness{Sim: sim, Dispatcher: d, Router: r}
}
