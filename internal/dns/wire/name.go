package wire

import (
	"errors"
	"fmt"
)

var errNameBufferFull = errors.New("decoded name exceeds buffer capacity")

// NameBuffer holds one decoded domain name in dotted-ASCII form. Its
// capacity covers the longest legal name, so the zero value is ready to
// use and never grows. Contents are undefined after a failed decode.
type NameBuffer struct {
	buf [NameMax + 1]byte
	n   int
}

// Reset empties the buffer.
func (b *NameBuffer) Reset() {
	b.n = 0
}

// Len returns the length of the decoded name.
func (b *NameBuffer) Len() int {
	return b.n
}

// Bytes returns the decoded name as a view into the buffer. The view is
// invalidated by the next decode.
func (b *NameBuffer) Bytes() []byte {
	return b.buf[:b.n]
}

// String returns a copy of the decoded name.
func (b *NameBuffer) String() string {
	return string(b.buf[:b.n])
}

func (b *NameBuffer) pushByte(c byte) bool {
	if b.n >= len(b.buf) {
		return false
	}
	b.buf[b.n] = c
	b.n++
	return true
}

func (b *NameBuffer) push(p []byte) bool {
	if b.n+len(p) > len(b.buf) {
		return false
	}
	b.n += copy(b.buf[b.n:], p)
	return true
}

// DecodeName converts one length-prefixed encoded domain name into dst:
// "\x03www\x06google\x03com\x00" becomes "www.google.com". src must span
// the exact encoding, terminating zero byte included; the caller locates
// the terminator. Never reads past src. dst contents are undefined when an
// error is returned.
func DecodeName(dst *NameBuffer, src []byte) error {
	dst.Reset()

	// root domain
	if len(src) <= NameEncMin {
		dst.pushByte('.')
		return nil
	}

	// walk (len:1byte | label) pairs, terminator stripped
	rem := src[:len(src)-1]
	first := true
	for len(rem) >= 2 {
		if first {
			first = false
		} else if !dst.pushByte('.') {
			return errNameBufferFull
		}
		n := int(rem[0])
		rem = rem[1:]
		switch {
		case n < 1:
			return fmt.Errorf("label length is too short: %d", n)
		case n > LabelMax:
			return fmt.Errorf("label length is too long: %d", n)
		case n > len(rem):
			return fmt.Errorf("label length is greater than remaining length: %d > %d", n, len(rem))
		}
		if !dst.push(rem[:n]) {
			return errNameBufferFull
		}
		rem = rem[n:]
	}

	if len(rem) != 0 {
		return fmt.Errorf("name format error, remaining length: %d", len(rem))
	}
	return nil
}

// skipName advances the cursor past exactly one possibly-compressed name
// inside a resource record, computing only its on-wire footprint:
//
//	\x00          root domain        1 byte
//	\x02cn\x00    normal name        1+len per label, then 1
//	[ptr:2]       fully compressed   2 bytes
//	\x02cn[ptr:2] partially compressed
//
// Compression pointer targets are never followed; answer names are skipped,
// not decoded. After the name the cursor must still hold the fixed record
// fields, so the caller can read them without further checks.
func skipName(c *cursor) error {
loop:
	for c.len() > 0 {
		switch b := c.rem[0]; {
		case b == 0:
			c.advance(1)
			break loop
		case b >= compressionMin:
			if !c.advance(2) {
				return errors.New("compression pointer overruns remaining length")
			}
			break loop
		case b > LabelMax:
			return fmt.Errorf("label length is too long: %d", b)
		default:
			if !c.advance(1 + int(b)) {
				return fmt.Errorf("label length is greater than remaining length: %d > %d", b, c.len()-1)
			}
		}
	}

	if c.len() < RecordFixedSize {
		return fmt.Errorf("remaining length is less than record fixed size: %d < %d", c.len(), RecordFixedSize)
	}
	return nil
}
