package comm

import (
	"bytes"
	"io"
)

// Join encodes args into one argument blob. Each argument is length
// prefixed, so no byte value inside an argument is special.
func Join(args ...string) []byte {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, a := range args {
		// writes to a bytes.Buffer cannot fail
		_ = w.WriteString(a)
	}
	_ = w.Flush()
	return buf.Bytes()
}

// Split decodes at most n arguments from blob. A short or corrupt blob
// yields fewer than n entries; callers must check the length.
func Split(blob []byte, n int) []string {
	args, _ := split(blob, n)
	return args
}

// SplitExact decodes exactly n arguments for op. A short blob, a corrupt
// argument or trailing bytes are reported as a ProtocolError.
func SplitExact(op Opcode, blob []byte, n int) ([]string, error) {
	args, rest := split(blob, n)
	if len(args) < n {
		return nil, NewProtocolError(op, ErrMalformed, "expected %d arguments, got %d", n, len(args))
	}
	if rest > 0 {
		return nil, NewProtocolError(op, ErrMalformed, "%d trailing bytes after %d arguments", rest, n)
	}
	return args, nil
}

// SplitAll decodes every argument in blob.
func SplitAll(op Opcode, blob []byte) ([]string, error) {
	var args []string
	br := bytes.NewReader(blob)
	r := NewReader(br)
	for br.Len() > 0 || r.r.Buffered() > 0 {
		s, err := r.ReadString()
		if err != nil {
			return nil, NewProtocolError(op, ErrMalformed, "argument %d: %v", len(args), err)
		}
		args = append(args, s)
	}
	return args, nil
}

// split returns the decoded arguments and the number of undecoded bytes.
func split(blob []byte, n int) ([]string, int) {
	args := make([]string, 0, n)
	br := bytes.NewReader(blob)
	r := NewReader(br)
	for i := 0; i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			if err != io.EOF {
				return args, br.Len() + r.r.Buffered()
			}
			break
		}
		args = append(args, s)
	}
	return args, br.Len() + r.r.Buffered()
}
