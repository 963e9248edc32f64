// Package wire validates and partially decodes DNS messages carried over
// UDP. It is the trust boundary of the relay: every packet read from the
// network passes through CheckQuery or CheckReply before any other code
// looks at it, and reply packets are scanned for their first address
// record with ScanAnswerAddr. All operations work in place over the
// caller's buffer and allocate nothing on the accept path.
package wire

import "encoding/binary"

// Protocol-fixed sizes and ceilings (RFC 1035).
const (
	// HeaderSize is the fixed DNS message header size.
	HeaderSize = 12

	// QuestionFixedSize is the size of the question fields after the name
	// (QTYPE + QCLASS).
	QuestionFixedSize = 4

	// RecordFixedSize is the size of the resource record fields after the
	// name (TYPE + CLASS + TTL + RDLENGTH).
	RecordFixedSize = 10

	// NameEncMin is the minimum encoded name length: the root domain,
	// a single zero byte.
	NameEncMin = 1

	// NameEncMax is the maximum encoded name length, terminator included.
	NameEncMax = 255

	// NameMax is the maximum dotted-ASCII name length.
	NameMax = 253

	// LabelMax is the maximum length of a single label.
	LabelMax = 63

	// MinPacketSize is the smallest packet this relay accepts: a header,
	// a root name, and the fixed question fields.
	MinPacketSize = HeaderSize + NameEncMin + QuestionFixedSize

	// MaxPacketSize is the largest packet this relay accepts. Matches the
	// UDP payload that fits a 1500-byte ethernet frame.
	MaxPacketSize = 1472
)

// Wire values this relay cares about.
const (
	ClassIN     = 1 // Internet class
	OpcodeQuery = 0 // standard query

	TypeA     = 1
	TypeCNAME = 5
	TypeAAAA  = 28

	IPv4AddrLen = 4
	IPv6AddrLen = 16
)

// compressionMin is the smallest length byte whose top two bits are set,
// marking a 2-byte compression pointer.
const compressionMin = 0xC0

// Header flag bits, within the 16-bit flags field at offset 2.
const (
	flagQR      = 0x8000
	opcodeShift = 11
	opcodeMask  = 0xF
	rcodeMask   = 0xF
)

// ID returns the transaction id of a packet. The packet must hold at
// least HeaderSize bytes.
func ID(pkt []byte) uint16 {
	return binary.BigEndian.Uint16(pkt[0:2])
}

// SetID rewrites the transaction id in place.
func SetID(pkt []byte, id uint16) {
	binary.BigEndian.PutUint16(pkt[0:2], id)
}

// QType returns the question type of a packet whose encoded question name
// is nameLen bytes. The packet must already have passed CheckQuery or
// CheckReply with that name length.
func QType(pkt []byte, nameLen int) uint16 {
	return binary.BigEndian.Uint16(pkt[HeaderSize+nameLen:])
}

// AsciiNameLen converts an encoded name length to the length of its
// dotted-ASCII form ("." for the root domain).
func AsciiNameLen(nameLen int) int {
	if n := nameLen - 2; n > 0 {
		return n
	}
	return 1
}

// SetReply marks pkt as a successful response in place: the QR bit is set
// and the response code is cleared.
func SetReply(pkt []byte) {
	pkt[2] |= flagQR >> 8
	pkt[3] &^= rcodeMask
}

// StripAnswers truncates a packet to its question section, zeroing the
// answer, authority and additional counts. Used to reply with no answer.
// nameLen is the encoded question name length reported by the validator.
func StripAnswers(pkt []byte, nameLen int) []byte {
	binary.BigEndian.PutUint16(pkt[6:8], 0)
	binary.BigEndian.PutUint16(pkt[8:10], 0)
	binary.BigEndian.PutUint16(pkt[10:12], 0)
	return pkt[:HeaderSize+nameLen+QuestionFixedSize]
}
