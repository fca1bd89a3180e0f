package adb

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Wire protocol commands, little-endian ASCII tags.
const (
	cmdConnect = 0x4e584e43 // CNXN
	cmdAuth    = 0x48545541 // AUTH
	cmdOpen    = 0x4e45504f // OPEN
	cmdOkay    = 0x59414b4f // OKAY
	cmdWrite   = 0x45545257 // WRTE
	cmdClose   = 0x45534c43 // CLSE
)

const (
	protocolVersion = 0x01000000
	maxPayload      = 256 * 1024

	authToken        = 1
	authSignature    = 2
	authRSAPublicKey = 3

	headerSize = 24
)

// Default transport timeouts.
const (
	defaultDialTimeout = 9 * time.Second
	defaultIOTimeout   = 10 * time.Second
)

// systemIdentity announces this client in the connect handshake.
const systemIdentity = "host::atvbridge\x00"

// message is one wire frame: a fixed header plus an optional payload.
type message struct {
	command uint32
	arg0    uint32
	arg1    uint32
	payload []byte
}

// checksum is the protocol's payload check: a plain byte sum.
func checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// encodeMessage serializes a frame. The header carries the command, two
// arguments, payload length, payload checksum and the command's bitwise
// complement as a magic value.
func encodeMessage(m message) []byte {
	buf := make([]byte, headerSize+len(m.payload))
	binary.LittleEndian.PutUint32(buf[0:], m.command)
	binary.LittleEndian.PutUint32(buf[4:], m.arg0)
	binary.LittleEndian.PutUint32(buf[8:], m.arg1)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(m.payload)))
	binary.LittleEndian.PutUint32(buf[16:], checksum(m.payload))
	binary.LittleEndian.PutUint32(buf[20:], m.command^0xffffffff)
	copy(buf[headerSize:], m.payload)
	return buf
}

// decodeMessage reads one frame, validating the magic value and payload
// checksum.
func decodeMessage(r io.Reader) (message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return message{}, err
	}

	m := message{
		command: binary.LittleEndian.Uint32(header[0:]),
		arg0:    binary.LittleEndian.Uint32(header[4:]),
		arg1:    binary.LittleEndian.Uint32(header[8:]),
	}
	length := binary.LittleEndian.Uint32(header[12:])
	check := binary.LittleEndian.Uint32(header[16:])
	magic := binary.LittleEndian.Uint32(header[20:])

	if magic != m.command^0xffffffff {
		return message{}, fmt.Errorf("%w: bad magic %#x for command %#x", ErrMalformedResponse, magic, m.command)
	}
	if length > maxPayload {
		return message{}, fmt.Errorf("%w: payload length %d exceeds maximum", ErrMalformedResponse, length)
	}

	if length > 0 {
		m.payload = make([]byte, length)
		if _, err := io.ReadFull(r, m.payload); err != nil {
			return message{}, err
		}
		if got := checksum(m.payload); got != check {
			return message{}, fmt.Errorf("%w: got %#x, header says %#x", ErrChecksum, got, check)
		}
	}

	return m, nil
}

// NetTransport opens direct TCP sessions against a device's debug port and
// speaks the device wire protocol, including the RSA challenge handshake.
type NetTransport struct {
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// NewNetTransport returns a transport with default timeouts.
func NewNetTransport() *NetTransport {
	return &NetTransport{
		DialTimeout: defaultDialTimeout,
		IOTimeout:   defaultIOTimeout,
	}
}

// Open dials target and completes the connect handshake. When the device
// challenges, the token is signed with the private key; an unrecognized key
// falls back to offering the public key, which requires on-screen
// confirmation the first time.
func (t *NetTransport) Open(target string, creds *Credentials) (Session, error) {
	conn, err := net.DialTimeout("tcp", target, t.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, wireErr(err))
	}

	s := &netSession{conn: conn, timeout: t.IOTimeout}
	if err := s.handshake(creds); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake with %s: %w", target, err)
	}
	return s, nil
}

// netSession is one authenticated device connection. Stream IDs restart per
// session; the manager guarantees commands never overlap.
type netSession struct {
	conn    net.Conn
	timeout time.Duration
	nextID  uint32
}

func (s *netSession) handshake(creds *Credentials) error {
	if err := s.send(message{command: cmdConnect, arg0: protocolVersion, arg1: maxPayload, payload: []byte(systemIdentity)}); err != nil {
		return err
	}

	sentSignature := false
	for {
		m, err := s.receive()
		if err != nil {
			return err
		}

		switch m.command {
		case cmdConnect:
			return nil

		case cmdAuth:
			if m.arg0 != authToken {
				return fmt.Errorf("%w: unexpected auth type %d", ErrMalformedResponse, m.arg0)
			}
			if !sentSignature && creds != nil && len(creds.Key) > 0 {
				sig, err := signToken(creds.Key, m.payload)
				if err != nil {
					return err
				}
				sentSignature = true
				if err := s.send(message{command: cmdAuth, arg0: authSignature, payload: sig}); err != nil {
					return err
				}
				continue
			}
			// Signature rejected or no key: offer the public key and wait
			// for the user to accept on screen.
			if creds == nil || len(creds.PublicKey) == 0 {
				return fmt.Errorf("%w: device requires authentication and no key is available", ErrServerRPC)
			}
			pub := append(append([]byte{}, creds.PublicKey...), 0)
			if err := s.send(message{command: cmdAuth, arg0: authRSAPublicKey, payload: pub}); err != nil {
				return err
			}

		default:
			return fmt.Errorf("%w: unexpected command %#x during handshake", ErrMalformedResponse, m.command)
		}
	}
}

// Shell opens a shell stream for cmd, drains its output and returns it once
// the device closes the stream.
func (s *netSession) Shell(cmd string) (string, error) {
	s.nextID++
	localID := s.nextID

	destination := []byte("shell:" + cmd + "\x00")
	if err := s.send(message{command: cmdOpen, arg0: localID, payload: destination}); err != nil {
		return "", err
	}

	var remoteID uint32
	var out bytes.Buffer
	for {
		m, err := s.receive()
		if err != nil {
			return "", err
		}

		switch m.command {
		case cmdOkay:
			remoteID = m.arg0

		case cmdWrite:
			if m.arg1 != localID {
				continue
			}
			out.Write(m.payload)
			if err := s.send(message{command: cmdOkay, arg0: localID, arg1: m.arg0}); err != nil {
				return "", err
			}

		case cmdClose:
			if m.arg1 != localID && m.arg1 != 0 {
				continue
			}
			// Acknowledge so the device can reclaim the stream.
			_ = s.send(message{command: cmdClose, arg0: localID, arg1: remoteID})
			return out.String(), nil

		default:
			return "", fmt.Errorf("%w: unexpected command %#x on shell stream", ErrMalformedResponse, m.command)
		}
	}
}

// Close tears down the TCP connection.
func (s *netSession) Close() error {
	return s.conn.Close()
}

func (s *netSession) send(m message) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return wireErr(err)
	}
	if _, err := s.conn.Write(encodeMessage(m)); err != nil {
		return wireErr(err)
	}
	return nil
}

func (s *netSession) receive() (message, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.timeout)); err != nil {
		return message{}, wireErr(err)
	}
	m, err := decodeMessage(s.conn)
	if err != nil {
		return message{}, wireErr(err)
	}
	return m, nil
}

// wireErr maps deadline failures onto the timeout sentinel so callers can
// classify them without reaching into net internals.
func wireErr(err error) error {
	if err == nil {
		return nil
	}
	if os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// signToken answers the device's auth challenge: the 20-byte token is
// signed as a SHA-1 digest with the PEM-encoded RSA private key.
func signToken(keyPEM, token []byte) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("auth key: no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth key: %w", err)
	}
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, token)
	if err != nil {
		return nil, fmt.Errorf("sign auth token: %w", err)
	}
	return sig, nil
}
