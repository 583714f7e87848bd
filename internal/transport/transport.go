// Package transport provides a registry of drivers that publish encoded reports.
package transport

import (
	"fmt"
	"sort"
	"sync"

	"FlowRadar/internal/config"
	"FlowRadar/internal/metrics"
)

var (
	drivers = make(map[string]func() Driver)
	lock    = &sync.RWMutex{}

	// ErrTransport is the base error for transport failures.
	ErrTransport = fmt.Errorf("transport error")
)

// DriverError wraps a driver-specific error with its driver name.
type DriverError struct {
	Driver string
	Err    error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s for %s transport", e.Err.Error(), e.Driver)
}

func (e *DriverError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Driver is a publishing backend.
type Driver interface {
	Init(cfg config.PublishConfig) error // connect using the publish configuration
	Send(key, data []byte) error         // deliver one encoded report
	Close() error
}

// Transport is a named, initialized driver. It implements model.Publisher.
type Transport struct {
	Driver
	name string
}

// Name returns the driver name.
func (t *Transport) Name() string {
	return t.name
}

// Send forwards data to the driver and wraps errors with the driver name.
func (t *Transport) Send(key, data []byte) error {
	if err := t.Driver.Send(key, data); err != nil {
		metrics.PublishErrors.WithLabelValues(t.name).Inc()
		return &DriverError{t.name, err}
	}
	return nil
}

// Close closes the driver and wraps errors with the driver name.
func (t *Transport) Close() error {
	if err := t.Driver.Close(); err != nil {
		return &DriverError{t.name, err}
	}
	return nil
}

// RegisterDriver makes a driver available under name. Drivers register from init.
func RegisterDriver(name string, factory func() Driver) {
	lock.Lock()
	defer lock.Unlock()
	drivers[name] = factory
}

// Open initializes the driver selected by cfg.Driver.
func Open(cfg config.PublishConfig) (*Transport, error) {
	lock.RLock()
	factory, ok := drivers[cfg.Driver]
	lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: driver %s not found", ErrTransport, cfg.Driver)
	}

	d := factory()
	if err := d.Init(cfg); err != nil {
		return nil, &DriverError{cfg.Driver, err}
	}
	return &Transport{Driver: d, name: cfg.Driver}, nil
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	lock.RLock()
	defer lock.RUnlock()
	names := make([]string, 0, len(drivers))
	for k := range drivers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
