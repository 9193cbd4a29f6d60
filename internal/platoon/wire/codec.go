package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"net"
)

// maxEnvelopeSize bounds a single encoded envelope so a corrupt or
// hostile peer cannot make a reader allocate unbounded memory.
const maxEnvelopeSize = 1 << 20

// Codec frames Envelopes over a stream connection as a 4-byte
// big-endian length prefix followed by a gob-encoded Envelope,
// realizing spec.md section 4.3/6's "fixed-size tagged record" in
// idiomatic Go (see DESIGN.md for why gob was chosen over a
// hand-rolled binary layout or a third-party codec).
type Codec struct {
	conn net.Conn
}

// NewCodec wraps a stream connection (a TCP *net.TCPConn in
// practice) for framed Envelope exchange.
func NewCodec(conn net.Conn) *Codec {
	return &Codec{conn: conn}
}

// WriteEnvelope encodes and sends env.
func (c *Codec) WriteEnvelope(env Envelope) error {
	buf, err := encode(env)
	if err != nil {
		return err
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(buf)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("wire: write body: %w", err)
	}
	return nil
}

// ReadEnvelope blocks for the next framed Envelope. If the decoded
// Kind is unknown, it returns ErrUnknownKind alongside the zero
// Envelope; callers should treat that as "skip this message", not a
// connection failure.
func (c *Codec) ReadEnvelope() (Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		return Envelope{}, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n == 0 || n > maxEnvelopeSize {
		return Envelope{}, fmt.Errorf("wire: invalid frame length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return Envelope{}, err
	}
	return decode(buf)
}

// Close closes the underlying connection.
func (c *Codec) Close() error { return c.conn.Close() }

func encode(env Envelope) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(buf []byte) (Envelope, error) {
	var env Envelope
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode: %w", err)
	}
	if !env.Kind.Known() {
		return Envelope{}, ErrUnknownKind{Kind: env.Kind}
	}
	return env, nil
}

// PacketCodec frames Envelopes as single UDP datagrams (no length
// prefix needed: UDP preserves datagram boundaries). Used for the
// Follower -> Follower rear-chain telemetry of spec.md section 4.3.
type PacketCodec struct {
	conn net.PacketConn
}

// NewPacketCodec wraps a UDP packet connection.
func NewPacketCodec(conn net.PacketConn) *PacketCodec {
	return &PacketCodec{conn: conn}
}

// WriteEnvelope encodes env and sends it as a single datagram to dst.
func (c *PacketCodec) WriteEnvelope(env Envelope, dst net.Addr) error {
	buf, err := encode(env)
	if err != nil {
		return err
	}
	if len(buf) > maxEnvelopeSize {
		return fmt.Errorf("wire: envelope too large for a datagram: %d bytes", len(buf))
	}
	_, err = c.conn.WriteTo(buf, dst)
	return err
}

// ReadEnvelope blocks for the next datagram and decodes it.
func (c *PacketCodec) ReadEnvelope() (Envelope, net.Addr, error) {
	buf := make([]byte, maxEnvelopeSize)
	n, addr, err := c.conn.ReadFrom(buf)
	if err != nil {
		return Envelope{}, addr, err
	}
	env, err := decode(buf[:n])
	return env, addr, err
}

// Close closes the underlying packet connection.
func (c *PacketCodec) Close() error { return c.conn.Close() }
