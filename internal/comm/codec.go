package comm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// MaxArgSize bounds a single decoded argument so a corrupt length prefix
// cannot force an arbitrary allocation.
const MaxArgSize = 64 << 20

// maxWidth is the digit count of the largest uint64.
const maxWidth = 20

// An argument travels as its byte length followed by the raw bytes. The
// length is written as a count chain ending in a sign and the digits:
//
//	0          +0
//	15         2+15
//	1234567890 210+1234567890
//
// Each element of the chain gives the width of the next one, so a reader
// always knows how many bytes to take and never scans the payload.

// Reader decodes arguments from a stream.
type Reader struct {
	r *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadUint reads one count-chain number. io.EOF is returned only when the
// stream ends before the number starts.
func (r *Reader) ReadUint() (uint64, error) {
	width := 1
	for first := true; ; first = false {
		lead, err := r.r.ReadByte()
		if err != nil {
			if !first && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		switch {
		case lead == '+':
			digits, err := r.digits(width)
			if err != nil {
				return 0, err
			}
			return strconv.ParseUint(digits, 10, 64)
		case lead == '-':
			return 0, errors.New("comm: negative length")
		case lead >= '1' && lead <= '9':
			rest, err := r.digits(width - 1)
			if err != nil {
				return 0, err
			}
			width, _ = strconv.Atoi(string(lead) + rest)
			if width > maxWidth {
				return 0, fmt.Errorf("comm: %d-digit number does not fit", width)
			}
		default:
			return 0, fmt.Errorf("comm: bad count byte 0x%02x", lead)
		}
	}
}

// digits reads exactly n decimal digits.
func (r *Reader) digits(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	for _, b := range buf {
		if b < '0' || b > '9' {
			return "", fmt.Errorf("comm: bad digit 0x%02x", b)
		}
	}
	return string(buf), nil
}

// ReadString reads one argument.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint()
	if err != nil || n == 0 {
		return "", err
	}
	if n > MaxArgSize {
		return "", fmt.Errorf("comm: %d-byte argument over the %d-byte limit", n, MaxArgSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(buf), nil
}

// Writer encodes arguments to a stream. Call Flush when done.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// chain returns the count prefix for a number of width digits.
func chain(width int) string {
	if width <= 1 {
		return ""
	}
	n := strconv.Itoa(width)
	return chain(len(n)) + n
}

// WriteUint writes val as a count-chain number.
func (w *Writer) WriteUint(val uint64) error {
	digits := strconv.FormatUint(val, 10)
	_, err := w.w.WriteString(chain(len(digits)) + "+" + digits)
	return err
}

// WriteString writes one argument.
func (w *Writer) WriteString(s string) error {
	if err := w.WriteUint(uint64(len(s))); err != nil {
		return err
	}
	_, err := w.w.WriteString(s)
	return err
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
