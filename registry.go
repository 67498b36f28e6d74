package gokern

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// DeviceProps describes a device. It is a snapshot taken at enumeration
// time and is not refreshed if the host changes afterwards.
type DeviceProps struct {
	Name                string
	Backend             Backend
	MultiProcessorCount int
	MaxUnitsPerBlock    int
	MaxBlockExtent      Dim3
	MaxGridExtent       Dim3
	GlobalMemBytes      uint64
	SharedMemPerBlock   int      // bytes of block shared memory
	WarpSize            int      // lanes per warp, 1 on CPU backends
	Features            []string // host CPU extensions
}

func (p DeviceProps) clone() DeviceProps {
	p.Features = append([]string(nil), p.Features...)
	return p
}

// Device is one backend made available by a Registry.
type Device struct {
	id     int
	engine engine
	props  DeviceProps

	mu     sync.RWMutex
	closed bool

	// launches registered on the device and not yet finished, by ticket
	lmu     sync.Mutex
	lcond   *sync.Cond
	tickets uint64
	pending map[uint64]struct{}
}

func newDevice(id int, e engine) *Device {
	d := &Device{id: id, engine: e, props: e.props(), pending: make(map[uint64]struct{})}
	d.lcond = sync.NewCond(&d.lmu)
	return d
}

// ID returns the device index within its registry.
func (d *Device) ID() int {
	return d.id
}

// Backend returns the backend variant of the device.
func (d *Device) Backend() Backend {
	return d.engine.backend()
}

// Props returns the properties captured when the device was created.
func (d *Device) Props() DeviceProps {
	return d.props.clone()
}

func (d *Device) String() string {
	return fmt.Sprintf("device %d: %s", d.id, d.props.Name)
}

// acquire marks the device busy; it fails once the device was closed.
func (d *Device) acquire() bool {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return false
	}
	return true
}

func (d *Device) release() {
	d.mu.RUnlock()
}

// beginLaunch registers a launch that was issued but may not have run yet.
func (d *Device) beginLaunch() uint64 {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	t := d.tickets
	d.tickets++
	d.pending[t] = struct{}{}
	return t
}

func (d *Device) endLaunch(t uint64) {
	d.lmu.Lock()
	delete(d.pending, t)
	d.lcond.Broadcast()
	d.lmu.Unlock()
}

// waitLaunches blocks until every launch registered before the call, from
// any context, has finished. Launches issued afterwards are not waited for.
func (d *Device) waitLaunches() {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	horizon := d.tickets
	for d.pendingBefore(horizon) {
		d.lcond.Wait()
	}
}

func (d *Device) pendingBefore(horizon uint64) bool {
	for t := range d.pending {
		if t < horizon {
			return true
		}
	}
	return false
}

// shutdown waits for running launches and stops the backend.
func (d *Device) shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.engine.close()
}

// Registry enumerates the devices of a configured set of backends.
//
// Init brings the backends up (worker pools, scratch memory) and is safe to
// call more than once. The owner of a Registry is responsible for calling
// Shutdown. After Shutdown, devices handed out earlier reject launches and
// Init may be called again to obtain fresh devices.
type Registry struct {
	cfg      Config
	backends []Backend

	mu      sync.Mutex
	devices []*Device
	ready   bool
}

// NewRegistry returns a registry over the given backends. A registry
// without backends has no devices.
func NewRegistry(cfg Config, backends ...Backend) *Registry {
	return &Registry{
		cfg:      cfg.normalize(),
		backends: append([]Backend(nil), backends...),
	}
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *Registry
)

// DefaultRegistry returns the process-wide registry over every backend,
// configured from the environment. Invalid environment settings fall back
// to DefaultConfig.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		cfg, err := LoadConfig()
		if err != nil {
			Logger().Warn("gokern: ignoring environment configuration", "err", err)
			cfg = DefaultConfig()
		}
		defaultRegistry = NewRegistry(cfg, AllBackends()...)
	})
	return defaultRegistry
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// Init brings up every configured backend. Calling Init on an initialized
// registry does nothing.
func (r *Registry) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return nil
	}
	devices := make([]*Device, 0, len(r.backends))
	for i, b := range r.backends {
		if b < Sequential || b > SIMT {
			for _, d := range devices {
				d.shutdown()
			}
			return NewInvalidArgError("Init", fmt.Sprintf("unknown backend %d", int(b)))
		}
		devices = append(devices, newDevice(i, newEngine(b, r.cfg)))
	}
	r.devices = devices
	r.ready = true
	Logger().Info("gokern: registry initialized", "devices", len(devices), "workers", r.cfg.Workers)
	return nil
}

// Shutdown stops every device. It waits for running launches and is safe
// to call more than once.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready {
		return
	}
	for _, d := range r.devices {
		d.shutdown()
	}
	r.devices = nil
	r.ready = false
	Logger().Info("gokern: registry shut down")
}

// EnumerateDevices returns the properties of every device, recomputed on
// each call. It initializes the registry if needed.
func (r *Registry) EnumerateDevices() ([]DeviceProps, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	props := make([]DeviceProps, 0, len(r.devices))
	for _, d := range r.devices {
		props = append(props, backendProps(d.Backend(), r.cfg))
	}
	return props, nil
}

// DeviceCount returns the number of devices.
func (r *Registry) DeviceCount() int {
	return len(r.backends)
}

// SelectDevice returns the device with the given ID.
func (r *Registry) SelectDevice(id int) (*Device, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.devices) {
		return nil, errors.Wrapf(ErrDeviceNotFound, "id %d of %d devices", id, len(r.devices))
	}
	return r.devices[id], nil
}

// DeviceFor returns the first device running backend b.
func (r *Registry) DeviceFor(b Backend) (*Device, error) {
	if err := r.Init(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.Backend() == b {
			return d, nil
		}
	}
	return nil, errors.Wrapf(ErrDeviceNotFound, "no %s device", b)
}
