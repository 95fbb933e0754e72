package httpd

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"time"
)

const (
	// FrameSize is the fixed on-wire size of every packet.
	FrameSize = 1024
	// ContentSize is the payload capacity of one packet.
	ContentSize = 1000

	sizeOffset    = 0
	moreOffset    = 4
	modeOffset    = 5
	contentOffset = 6
)

// Mode tells the receiver how to interpret a packet.
type Mode uint8

const (
	// ModeEndOfTransmission closes a logical exchange.
	ModeEndOfTransmission Mode = iota
	// ModeData carries payload bytes.
	ModeData
	// ModeAck acknowledges the previous message.
	ModeAck
	// ModeNoResult reports an empty result.
	ModeNoResult
	// ModeTimeout reports that the peer gave up waiting.
	ModeTimeout
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeEndOfTransmission:
		return "EOT"
	case ModeData:
		return "DATA"
	case ModeAck:
		return "ACK"
	case ModeNoResult:
		return "NO_RESULT"
	case ModeTimeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m <= ModeTimeout
}

// Packet is one decoded frame.
type Packet struct {
	Size    uint32 // total message size, repeated on every frame of a DATA message.
	More    bool
	Mode    Mode
	Content []byte // at most ContentSize bytes.
}

// MarshalBinary encodes p into a FrameSize-byte frame. Unused content and
// padding bytes are zero.
func (p *Packet) MarshalBinary() ([]byte, error) {
	frame := make([]byte, FrameSize)
	if err := p.encode(frame); err != nil {
		return nil, err
	}

	return frame, nil
}

func (p *Packet) encode(frame []byte) error {
	if len(p.Content) > ContentSize {
		return fmt.Errorf("encode packet: %w: content %d > %d", ErrMessageTooLarge, len(p.Content), ContentSize)
	}

	clear(frame[:FrameSize])
	binary.LittleEndian.PutUint32(frame[sizeOffset:], p.Size)
	if p.More {
		frame[moreOffset] = 1
	}
	frame[modeOffset] = byte(p.Mode)
	copy(frame[contentOffset:], p.Content)

	return nil
}

// UnmarshalBinary decodes a frame. Content is set to the full capacity; the
// receiver decides how many bytes are meaningful from Size.
func (p *Packet) UnmarshalBinary(frame []byte) error {
	if len(frame) != FrameSize {
		return fmt.Errorf("decode packet: %w: frame is %d bytes", ErrProtocolViolation, len(frame))
	}

	p.Size = binary.LittleEndian.Uint32(frame[sizeOffset:])
	p.More = frame[moreOffset] != 0
	p.Mode = Mode(frame[modeOffset])
	p.Content = frame[contentOffset : contentOffset+ContentSize]

	return nil
}

// SendMessage writes one logical message. Control modes go out as a single
// empty frame and payload is ignored. DATA payloads are split into
// ceil(len/ContentSize) frames, or one frame when empty.
func SendMessage(w io.Writer, mode Mode, payload []byte) error {
	if !mode.Valid() {
		return fmt.Errorf("send: %w: unknown mode %d", ErrProtocolViolation, uint8(mode))
	}

	frame := GetBuffer(FrameSize)
	defer PutBuffer(frame)

	if mode != ModeData {
		pkt := Packet{Mode: mode}
		if err := pkt.encode(frame); err != nil {
			return err
		}

		return writeFrame(w, frame)
	}

	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("send: %w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	frames := ceilDiv(len(payload), ContentSize)
	if frames == 0 {
		frames = 1
	}

	for i := 0; i < frames; i++ {
		chunk := payload[i*ContentSize : min((i+1)*ContentSize, len(payload))]
		pkt := Packet{
			Size:    uint32(len(payload)),
			More:    i < frames-1,
			Mode:    ModeData,
			Content: chunk,
		}
		if err := pkt.encode(frame); err != nil {
			return err
		}
		if err := writeFrame(w, frame); err != nil {
			return err
		}
	}

	return nil
}

func writeFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return classifyIOError("write frame", err)
	}
	if n != FrameSize {
		return fmt.Errorf("write frame: %w: %w", ErrTransport, io.ErrShortWrite)
	}

	return nil
}

// ReceiveMessage reads one logical message and returns its mode and payload.
// Control modes yield an empty payload.
//
// The payload buffer is sized from the first frame's declared total, which
// may be up to 4 GiB. Use a PacketConn with MaxMessageSize when the peer is
// not trusted.
func ReceiveMessage(r io.Reader) (Mode, []byte, error) {
	return receiveMessage(r, 0)
}

func receiveMessage(r io.Reader, limit int) (Mode, []byte, error) {
	frame := GetBuffer(FrameSize)
	defer PutBuffer(frame)

	var pkt Packet
	if err := readFrame(r, frame, &pkt); err != nil {
		return 0, nil, err
	}

	if !pkt.Mode.Valid() {
		return 0, nil, fmt.Errorf("receive: %w: unknown mode %d", ErrProtocolViolation, uint8(pkt.Mode))
	}

	if pkt.Mode != ModeData {
		return pkt.Mode, nil, nil
	}

	size := pkt.Size
	if limit > 0 && uint64(size) > uint64(limit) {
		return 0, nil, fmt.Errorf("receive: %w: %w: declared %d > %d",
			ErrProtocolViolation, ErrMessageTooLarge, size, limit)
	}

	payload := make([]byte, int(size))
	filled := 0

	for {
		n := min(len(payload)-filled, ContentSize)
		copy(payload[filled:], pkt.Content[:n])
		filled += n

		if !pkt.More {
			if filled < len(payload) {
				return 0, nil, fmt.Errorf("receive: %w: message ended at %d of %d bytes",
					ErrProtocolViolation, filled, len(payload))
			}

			return ModeData, payload, nil
		}

		if filled == len(payload) {
			return 0, nil, fmt.Errorf("receive: %w: more flag set after %d bytes", ErrProtocolViolation, filled)
		}

		if err := readFrame(r, frame, &pkt); err != nil {
			return 0, nil, err
		}

		if pkt.Mode != ModeData {
			return 0, nil, fmt.Errorf("receive: %w: %s frame inside DATA message", ErrProtocolViolation, pkt.Mode)
		}

		if pkt.Size != size {
			return 0, nil, fmt.Errorf("receive: %w: size changed from %d to %d", ErrProtocolViolation, size, pkt.Size)
		}
	}
}

func readFrame(r io.Reader, frame []byte, pkt *Packet) error {
	if _, err := io.ReadFull(r, frame); err != nil {
		return classifyIOError("read frame", err)
	}

	return pkt.UnmarshalBinary(frame)
}

// PacketConn exchanges framed messages over a net.Conn.
//
// ReadTimeout and WriteTimeout bound a whole message: positive sets a
// deadline, negative clears it and zero leaves deadlines untouched.
// MaxMessageSize, when positive, rejects larger declared DATA sizes.
type PacketConn struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int

	conn net.Conn
}

// NewPacketConn wraps conn.
func NewPacketConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *PacketConn {
	return &PacketConn{
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		conn:         conn,
	}
}

// Send writes one message.
func (c *PacketConn) Send(mode Mode, payload []byte) error {
	if err := setDeadline(c.conn.SetWriteDeadline, c.WriteTimeout); err != nil {
		return classifyIOError("set write deadline", err)
	}

	return SendMessage(c.conn, mode, payload)
}

// Receive reads one message.
func (c *PacketConn) Receive() (Mode, []byte, error) {
	if err := setDeadline(c.conn.SetReadDeadline, c.ReadTimeout); err != nil {
		return 0, nil, classifyIOError("set read deadline", err)
	}

	return receiveMessage(c.conn, c.MaxMessageSize)
}

// Conn returns the underlying connection.
func (c *PacketConn) Conn() net.Conn {
	return c.conn
}

// Close closes the underlying connection.
func (c *PacketConn) Close() error {
	return c.conn.Close()
}

func setDeadline(set func(time.Time) error, timeout time.Duration) error {
	switch {
	case timeout > 0:
		return set(time.Now().Add(timeout))
	case timeout < 0:
		return set(time.Time{})
	default:
		return nil
	}
}
