package adb

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ServerManager relays commands through a locally running ADB server. The
// server holds the actual device connection and can die independently of
// this process, so Available never trusts the cached flag: every read
// re-verifies against the server's live device list.
type ServerManager struct {
	target string
	client DeviceLister

	mu        sync.Mutex // guards device and connected
	device    RemoteDevice
	connected bool

	cmdLock sync.Mutex // serializes the wire; TryLock only

	logger zerolog.Logger
}

// NewServerManager creates a manager for the device with serial target
// (host:port) as known to the ADB server behind client.
func NewServerManager(target string, client DeviceLister) *ServerManager {
	return &ServerManager{
		target: target,
		client: client,
		logger: log.Logger,
	}
}

// SetLogger replaces the manager's logger.
func (m *ServerManager) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// Target returns the host:port this manager controls.
func (m *ServerManager) Target() string {
	return m.target
}

// RefreshAfterConnect reports true: reconnecting is a single request to
// the local server, cheap enough to continue straight into a data refresh
// within the same poll cycle.
func (m *ServerManager) RefreshAfterConnect() bool {
	return true
}

// Connect looks the device up in the server's device list and keeps its
// handle. It returns the resulting availability.
func (m *ServerManager) Connect(alwaysLogErrors bool) bool {
	device, err := m.findDevice()
	if err != nil {
		m.mu.Lock()
		m.device = nil
		m.connected = false
		m.mu.Unlock()

		if alwaysLogErrors {
			m.logger.Warn().Err(err).Str("target", m.target).Msg("Failed to connect through ADB server")
		}
		return false
	}

	m.mu.Lock()
	m.device = device
	m.connected = true
	m.mu.Unlock()
	return true
}

// findDevice asks the server for its live device list and matches this
// manager's target by serial number.
func (m *ServerManager) findDevice() (RemoteDevice, error) {
	devices, err := m.client.ListDevices()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServerRPC, err)
	}
	for _, device := range devices {
		serial, err := device.Serial()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrServerRPC, err)
		}
		if serial == m.target {
			return device, nil
		}
	}
	return nil, fmt.Errorf("%w: device %s not known to server", ErrServerRPC, m.target)
}

// Shell runs cmd on the device through the server. The availability probe
// runs first, so a dead server drops the command instead of failing it.
func (m *ServerManager) Shell(cmd string) (*string, error) {
	if !m.Available() {
		return nil, nil
	}

	m.mu.Lock()
	device := m.device
	m.mu.Unlock()
	if device == nil {
		return nil, nil
	}

	if !m.cmdLock.TryLock() {
		m.logger.Debug().Str("target", m.target).Str("cmd", cmd).Msg("Command dropped, another is in flight")
		return nil, nil
	}
	defer m.cmdLock.Unlock()

	out, err := device.Shell(cmd)
	if err != nil {
		if IsConnectivity(err) {
			m.markDisconnected()
		}
		return nil, err
	}
	return &out, nil
}

// Close drops the device handle. The server keeps its own connection to
// the device; there is nothing to tear down on this side.
func (m *ServerManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = nil
	m.connected = false
}

// Available re-verifies the device against the server's live device list.
// Any server failure during the probe reads as unavailable, never as the
// last cached state.
func (m *ServerManager) Available() bool {
	m.mu.Lock()
	device := m.device
	m.mu.Unlock()
	if device == nil {
		return false
	}

	if _, err := m.findDevice(); err != nil {
		m.markDisconnected()
		return false
	}

	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	return true
}

func (m *ServerManager) markDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = nil
	m.connected = false
}
