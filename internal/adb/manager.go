package adb

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DirectManager owns a transport session opened straight against the
// device. At most one command is on the wire at any time: Shell acquires
// the command lock without blocking and drops the command when another is
// still in flight.
type DirectManager struct {
	target  string
	keyPath string

	transport Transport

	mu        sync.Mutex // guards session and connected
	session   Session
	connected bool

	cmdLock sync.Mutex // serializes the wire; TryLock only

	logger zerolog.Logger
}

// NewDirectManager creates a manager that speaks to the device at target
// (host:port) through transport. keyPath optionally points at the private
// key used for authentication; a missing key pair is generated on the
// first connect.
func NewDirectManager(target, keyPath string, transport Transport) *DirectManager {
	return &DirectManager{
		target:    target,
		keyPath:   keyPath,
		transport: transport,
		logger:    log.Logger,
	}
}

// SetLogger replaces the manager's logger.
func (m *DirectManager) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// Target returns the host:port this manager controls.
func (m *DirectManager) Target() string {
	return m.target
}

// RefreshAfterConnect reports false: a direct reconnect performs the full
// TCP and auth handshake, so the data refresh waits for the next cycle to
// bound the cost of a single poll tick.
func (m *DirectManager) RefreshAfterConnect() bool {
	return false
}

// Connect opens a new device session, replacing any previous one. It
// returns the resulting availability and never fails loudly on ordinary
// connectivity errors.
func (m *DirectManager) Connect(alwaysLogErrors bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		_ = m.session.Close()
		m.session = nil
		m.connected = false
	}

	var creds *Credentials
	if m.keyPath != "" {
		c, err := EnsureCredentials(m.keyPath)
		if err != nil {
			if alwaysLogErrors {
				m.logger.Error().Err(err).Str("target", m.target).Msg("Failed to load ADB credentials")
			}
			return false
		}
		creds = c
	}

	session, err := m.transport.Open(m.target, creds)
	if err != nil {
		if alwaysLogErrors {
			m.logger.Warn().Err(err).Str("target", m.target).Msg("Failed to connect to device")
		}
		return false
	}

	m.session = session
	m.connected = true
	return true
}

// Shell runs cmd on the device. It returns nil without touching the wire
// when the manager is disconnected, and nil when another command is still
// in flight (commands are dropped, never queued). Transport errors are
// returned for the caller to classify; connectivity errors additionally
// mark the manager disconnected.
func (m *DirectManager) Shell(cmd string) (*string, error) {
	m.mu.Lock()
	session := m.session
	connected := m.connected
	m.mu.Unlock()

	if !connected || session == nil {
		return nil, nil
	}

	if !m.cmdLock.TryLock() {
		m.logger.Debug().Str("target", m.target).Str("cmd", cmd).Msg("Command dropped, another is in flight")
		return nil, nil
	}
	defer m.cmdLock.Unlock()

	out, err := session.Shell(cmd)
	if err != nil {
		if IsConnectivity(err) {
			m.markDisconnected()
		}
		return nil, err
	}
	return &out, nil
}

// Close tears down the session best-effort and marks the manager
// disconnected even when teardown fails.
func (m *DirectManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		_ = m.session.Close()
		m.session = nil
	}
	m.connected = false
}

// Available reports the cached connection state. The direct backend owns
// its session outright, so the flag set by the last connect/shell outcome
// is authoritative.
func (m *DirectManager) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *DirectManager) markDisconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}
