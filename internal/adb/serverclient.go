package adb

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// ServerClient talks to a locally running ADB server over its TCP control
// socket. Requests are length-prefixed ASCII strings; the server answers
// OKAY or FAIL followed by an optional payload.
type ServerClient struct {
	addr    string
	timeout time.Duration
}

// NewServerClient returns a client for the ADB server at host:port,
// conventionally 127.0.0.1:5037.
func NewServerClient(host string, port int) *ServerClient {
	return &ServerClient{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: defaultIOTimeout,
	}
}

// ListDevices asks the server for its device table.
func (c *ServerClient) ListDevices() ([]RemoteDevice, error) {
	payload, err := c.query("host:devices")
	if err != nil {
		return nil, err
	}

	var devices []RemoteDevice
	for _, line := range strings.Split(strings.TrimSpace(payload), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, &serverDevice{client: c, serial: fields[0], state: fields[1]})
	}
	return devices, nil
}

// query runs one host: request and returns its hex-length-prefixed payload.
func (c *ServerClient) query(request string) (string, error) {
	conn, err := c.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := sendRequest(conn, request); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerRPC, err)
	}
	if err := readStatus(conn); err != nil {
		return "", err
	}

	payload, err := readHexPayload(conn)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerRPC, err)
	}
	return payload, nil
}

func (c *ServerClient) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrServerRPC, c.addr, err)
	}
	conn.SetDeadline(time.Now().Add(c.timeout))
	return conn, nil
}

// serverDevice is one row of the server's device table.
type serverDevice struct {
	client *ServerClient
	serial string
	state  string
}

// Serial returns the identifier the server listed the device under, the
// host:port it was connected with for TCP devices.
func (d *serverDevice) Serial() (string, error) {
	return d.serial, nil
}

// Shell runs cmd on the device through the server: a transport switch to
// the device followed by a shell request, output streamed until the server
// closes the connection.
func (d *serverDevice) Shell(cmd string) (string, error) {
	conn, err := d.client.dial()
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if err := sendRequest(conn, "host:transport:"+d.serial); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerRPC, err)
	}
	if err := readStatus(conn); err != nil {
		return "", err
	}

	if err := sendRequest(conn, "shell:"+cmd); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerRPC, err)
	}
	if err := readStatus(conn); err != nil {
		return "", err
	}

	out, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("%w: read shell output: %v", ErrServerRPC, err)
	}
	return string(out), nil
}

// sendRequest writes a request with its 4-digit hex length prefix.
func sendRequest(w io.Writer, request string) error {
	_, err := fmt.Fprintf(w, "%04x%s", len(request), request)
	return err
}

// readStatus consumes the server's 4-byte verdict. A FAIL carries a
// length-prefixed reason.
func readStatus(r io.Reader) error {
	var status [4]byte
	if _, err := io.ReadFull(r, status[:]); err != nil {
		return fmt.Errorf("%w: read status: %v", ErrServerRPC, err)
	}

	switch string(status[:]) {
	case "OKAY":
		return nil
	case "FAIL":
		reason, err := readHexPayload(r)
		if err != nil {
			return fmt.Errorf("%w: request refused", ErrServerRPC)
		}
		return fmt.Errorf("%w: %s", ErrServerRPC, reason)
	default:
		return fmt.Errorf("%w: unexpected status %q", ErrServerRPC, status)
	}
}

// readHexPayload reads a 4-digit hex length followed by that many bytes.
func readHexPayload(r io.Reader) (string, error) {
	var lengthHex [4]byte
	if _, err := io.ReadFull(r, lengthHex[:]); err != nil {
		return "", err
	}
	length, err := strconv.ParseUint(string(lengthHex[:]), 16, 32)
	if err != nil {
		return "", fmt.Errorf("bad length prefix %q", lengthHex)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", err
	}
	return string(payload), nil
}
