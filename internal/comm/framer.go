package comm

import (
	"bytes"
	"strconv"
)

// maxSizeDigits bounds the decimal size field of a frame header.
const maxSizeDigits = 12

// Message is one complete frame: an opcode and its undecoded argument blob.
type Message struct {
	Op   Opcode
	Blob []byte
}

// NewMessage builds a message from plain arguments.
func NewMessage(op Opcode, args ...string) Message {
	return Message{Op: op, Blob: Join(args...)}
}

// Args decodes every argument and checks the count against the opcode's
// arity.
func (m Message) Args() ([]string, error) {
	if !m.Op.Valid() {
		return nil, NewProtocolError(m.Op, ErrUnknownOpcode, "no arguments defined")
	}
	args, err := SplitAll(m.Op, m.Blob)
	if err != nil {
		return nil, err
	}
	a := arity[m.Op]
	if len(args) < a.min || (a.max >= 0 && len(args) > a.max) {
		return nil, NewProtocolError(m.Op, ErrMalformed, "%d arguments not allowed", len(args))
	}
	return args, nil
}

// Encode renders the frame: "OPC <size> <blob>\n".
func (m Message) Encode() []byte {
	size := strconv.Itoa(len(m.Blob))
	out := make([]byte, 0, 3+1+len(size)+1+len(m.Blob)+1)
	out = append(out, m.Op.String()...)
	out = append(out, ' ')
	out = append(out, size...)
	out = append(out, ' ')
	out = append(out, m.Blob...)
	return append(out, '\n')
}

// Framer reassembles frames from a byte stream delivered in arbitrary
// pieces. It is not safe for concurrent use; one framer serves one
// connection.
type Framer struct {
	buf []byte
}

// Feed appends data and returns every frame completed by it, in arrival
// order. On a malformed frame the buffered data is discarded and the frames
// decoded before it are returned along with the error.
func (f *Framer) Feed(data []byte) ([]Message, error) {
	f.buf = append(f.buf, data...)

	var msgs []Message
	for {
		msg, n, err := f.next()
		if err != nil {
			f.buf = nil
			return msgs, err
		}
		if n == 0 {
			break
		}
		msgs = append(msgs, msg)
		f.buf = f.buf[n:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	}
	return msgs, nil
}

// Pending returns the number of buffered bytes not yet part of a frame.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// next decodes one frame from the head of the buffer. It returns n == 0
// when more data is needed.
func (f *Framer) next() (Message, int, error) {
	b := f.buf
	if len(b) < 4 {
		return Message{}, 0, nil
	}
	op, ok := ParseOpcode(string(b[:3]))
	if !ok {
		return Message{}, 0, NewProtocolError(OpInvalid, ErrUnknownOpcode, "code %q", b[:3])
	}
	if b[3] != ' ' {
		return Message{}, 0, NewProtocolError(op, ErrMalformed, "missing separator after code")
	}

	rest := b[4:]
	sp := bytes.IndexByte(rest, ' ')
	if sp < 0 {
		if len(rest) > maxSizeDigits {
			return Message{}, 0, NewProtocolError(op, ErrMalformed, "size field too long")
		}
		return Message{}, 0, nil
	}
	if sp == 0 || sp > maxSizeDigits {
		return Message{}, 0, NewProtocolError(op, ErrMalformed, "bad size field")
	}
	size, err := strconv.Atoi(string(rest[:sp]))
	if err != nil || size < 0 {
		return Message{}, 0, NewProtocolError(op, ErrMalformed, "bad size field %q", rest[:sp])
	}
	if size > MaxArgSize*4 {
		return Message{}, 0, NewProtocolError(op, ErrMalformed, "frame of %d bytes exceeds limit", size)
	}

	start := 4 + sp + 1
	end := start + size
	if len(b) < end+1 {
		return Message{}, 0, nil
	}
	if b[end] != '\n' {
		return Message{}, 0, NewProtocolError(op, ErrMalformed, "missing line break after %d byte argument", size)
	}
	blob := make([]byte, size)
	copy(blob, b[start:end])
	return Message{Op: op, Blob: blob}, end + 1, nil
}
