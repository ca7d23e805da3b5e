package session

import (
	"sync"

	"github.com/hupe1980/vxbroker/core"
	"github.com/hupe1980/vxbroker/logging"
)

// AudioDevices is the device list of one direction (capture or render) and
// the device currently in use.
type AudioDevices struct {
	direction  core.DeviceDirection
	issuer     Issuer
	logger     logging.Logger
	notifier   *core.Notifier
	unregister func()

	mu      sync.Mutex
	devices []core.AudioDevice
	active  string
	deleted bool
}

// NewAudioDevices creates the device list for direction and registers it
// with registrar. The list is empty until BeginRefresh completes or the
// engine reports a hot swap.
func NewAudioDevices(direction core.DeviceDirection, issuer Issuer, registrar Registrar, optFns ...func(o *Options)) *AudioDevices {
	opts := applyOptions(optFns)
	d := &AudioDevices{
		direction: direction,
		issuer:    issuer,
		logger:    opts.Logger,
		notifier:  core.NewNotifier(opts.Logger),
	}
	d.unregister = registrar.Register(core.DeviceRoute(direction), d.handleEvent)
	return d
}

// Direction returns whether these are input or output devices.
func (d *AudioDevices) Direction() core.DeviceDirection { return d.direction }

// Subscribe observes device list and active device changes.
func (d *AudioDevices) Subscribe(fn core.ChangeFunc) (cancel func()) {
	return d.notifier.Subscribe(fn)
}

func (d *AudioDevices) entity() string { return core.DeviceRoute(d.direction).String() }

// Devices returns a copy of the known devices.
func (d *AudioDevices) Devices() []core.AudioDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]core.AudioDevice, len(d.devices))
	copy(out, d.devices)
	return out
}

// ActiveDevice returns the id of the device in use, empty if unknown.
func (d *AudioDevices) ActiveDevice() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// BeginRefresh asks the engine for the current device list.
func (d *AudioDevices) BeginRefresh(cb core.Callback) (*core.Operation, error) {
	return issue(d.issuer, &core.GetDevicesRequest{Direction: d.direction}, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		d.apply(resp.Devices, resp.ActiveDevice)
		return nil
	}, nil, cb)
}

// BeginSetActiveDevice selects the device with id. Selecting the active
// device completes synchronously; unknown ids are rejected once the list
// has been loaded.
func (d *AudioDevices) BeginSetActiveDevice(id string, cb core.Callback) (*core.Operation, error) {
	if id == "" {
		return nil, core.NewArgumentError("id", "must not be empty")
	}

	d.mu.Lock()
	active, known := d.active, d.devices
	d.mu.Unlock()

	if id == active {
		return completed(string(core.ReqSetActiveDevice), d.logger, cb), nil
	}
	if len(known) > 0 && !hasDevice(known, id) {
		return nil, core.NewArgumentError("id", "unknown device")
	}

	return issue(d.issuer, &core.SetActiveDeviceRequest{Direction: d.direction, DeviceID: id}, func(resp *core.Response) error {
		if resp.Failed() {
			return resp.Err()
		}
		d.mu.Lock()
		changed := d.active != id && !d.deleted
		if changed {
			d.active = id
		}
		d.mu.Unlock()
		if changed {
			d.notifier.Notify(d.entity(), core.FieldActiveDevice)
		}
		return nil
	}, nil, cb)
}

// Delete unregisters the device list.
func (d *AudioDevices) Delete() {
	d.mu.Lock()
	if d.deleted {
		d.mu.Unlock()
		return
	}
	d.deleted = true
	d.devices = nil
	d.active = ""
	d.mu.Unlock()

	d.unregister()
	d.notifier.Notify(d.entity(), core.FieldSessionDeleted)
}

func (d *AudioDevices) handleEvent(ev core.Event) {
	e, ok := ev.(*core.DevicesChangedEvent)
	if !ok {
		d.logger.Debug("unexpected event for audio devices", "direction", d.direction.String(), "event_type", ev.EventType())
		return
	}
	d.apply(e.Devices, e.ActiveDevice)
}

func (d *AudioDevices) apply(devices []core.AudioDevice, active string) {
	var ch changes
	d.mu.Lock()
	if d.deleted {
		d.mu.Unlock()
		return
	}
	if !sameDevices(d.devices, devices) {
		d.devices = append([]core.AudioDevice(nil), devices...)
		ch.add(core.FieldDevices)
	}
	if active != "" && active != d.active {
		d.active = active
		ch.add(core.FieldActiveDevice)
	}
	d.mu.Unlock()
	ch.notify(d.notifier, d.entity())
}

func hasDevice(devs []core.AudioDevice, id string) bool {
	for _, dev := range devs {
		if dev.ID == id {
			return true
		}
	}
	return false
}

func sameDevices(a, b []core.AudioDevice) bool {
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
