// Package adb supervises the control channel to an Android TV device's
// remote-shell interface. It provides two interchangeable connection
// managers: one that opens the device session directly, and one that
// relays through a locally running ADB server.
package adb

// Credentials holds the key pair used to authenticate a direct device
// session. The blobs are opaque to this package; their format is defined
// by the transport implementation.
type Credentials struct {
	Key       []byte
	PublicKey []byte
}

// Session is one established shell session against a device.
// Implementations are not safe for overlapping command execution; the
// manager serializes access.
type Session interface {
	// Shell runs a command on the device and returns its raw text output.
	Shell(cmd string) (string, error)

	// Close tears down the session.
	Close() error
}

// Transport opens shell sessions against a device addressed as host:port.
type Transport interface {
	Open(target string, creds *Credentials) (Session, error)
}

// RemoteDevice is a device handle held by a local ADB server.
type RemoteDevice interface {
	// Serial returns the device identifier as reported by the server,
	// typically the host:port the server connected to.
	Serial() (string, error)

	// Shell runs a command on the device through the server.
	Shell(cmd string) (string, error)
}

// DeviceLister is the client side of a local ADB server.
type DeviceLister interface {
	ListDevices() ([]RemoteDevice, error)
}

// Manager is the connection supervisor contract shared by both backends.
// Shell never queues: when the manager is disconnected, or another command
// is already in flight, it returns nil without touching the wire.
type Manager interface {
	// Connect establishes (or re-establishes) the device connection and
	// returns whether it succeeded. Ordinary connectivity failures are
	// reported through the return value, never as a panic or error; set
	// alwaysLogErrors to false to keep routine retries quiet.
	Connect(alwaysLogErrors bool) bool

	// Shell runs cmd on the device. A nil result with a nil error means
	// the command was dropped (disconnected or busy). A non-nil error is
	// a transport failure for the caller to classify.
	Shell(cmd string) (*string, error)

	// Close tears down the connection best-effort and marks the manager
	// disconnected regardless of teardown errors.
	Close()

	// Available reports whether the device is reachable.
	Available() bool

	// Target returns the host:port this manager controls.
	Target() string

	// RefreshAfterConnect reports whether a successful reconnect is cheap
	// enough that a data refresh should follow it within the same poll
	// cycle.
	RefreshAfterConnect() bool
}
