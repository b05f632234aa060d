//go:build !windows

package platform

import (
	"time"

	"github.com/1broseidon/winvd/internal/vderr"
)

type unsupportedConnector struct{}

// NewConnector returns the native connector. Outside Windows there is no
// shell service, so Connect always reports it as not registered.
func NewConnector() Connector { return unsupportedConnector{} }

func (unsupportedConnector) Attach() (func(), error) { return func() {}, nil }

func (unsupportedConnector) SetPriority(Priority) error { return nil }

func (unsupportedConnector) Connect() (ServiceProvider, error) {
	return nil, vderr.FromCode("connect", vderr.CodeClassNotRegistered)
}

func (unsupportedConnector) NewPump(interval time.Duration) (Pump, error) {
	return NewTickerPump(interval), nil
}
