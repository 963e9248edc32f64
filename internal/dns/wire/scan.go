package wire

import "encoding/binary"

// IPCheck classifies the first address record found in a validated reply.
type IPCheck int

const (
	// IPCheckBadPacket means a structural violation was found mid-scan.
	IPCheckBadPacket IPCheck = iota
	// IPCheckInRange means the address is a member of the designated set.
	IPCheckInRange
	// IPCheckNotInRange means the address is not a member.
	IPCheckNotInRange
	// IPCheckNotFound means the answer section holds no A/AAAA record.
	IPCheckNotFound
)

// String returns the textual form of the scan outcome.
func (r IPCheck) String() string {
	switch r {
	case IPCheckBadPacket:
		return "bad_packet"
	case IPCheckInRange:
		return "in_range"
	case IPCheckNotInRange:
		return "not_in_range"
	case IPCheckNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// AddrSet answers membership queries for raw binary addresses. addr holds
// exactly 4 bytes, or 16 when v6 is set. Implementations must be safe for
// concurrent use.
type AddrSet interface {
	Contains(addr []byte, v6 bool) bool
}

// ScanAnswerAddr walks the answer section of a validated reply for the
// first A or AAAA record and classifies its address against set. nameLen
// is the encoded question name length reported by CheckReply; the caller
// must also have confirmed the query type is A or AAAA. Records of other
// types are stepped over by their declared length, their names skipped but
// never decoded.
func (p *Parser) ScanAnswerAddr(pkt []byte, nameLen int, set AddrSet) IPCheck {
	answers := int(binary.BigEndian.Uint16(pkt[6:8]))

	cur := cursor{rem: pkt}
	if !cur.advance(HeaderSize + nameLen + QuestionFixedSize) {
		p.reject("answer section offset exceeds packet length", nameLen)
		return IPCheckBadPacket
	}

	for i := 0; i < answers; i++ {
		if err := skipName(&cur); err != nil {
			p.logger.Debug(map[string]any{"error": err.Error()}, "rejected dns reply during answer scan")
			return IPCheckBadPacket
		}

		// skipName guarantees the fixed record fields are present
		rec := cur.rem
		if class := binary.BigEndian.Uint16(rec[2:4]); class != ClassIN {
			p.reject("only the internet record class is supported", int(class))
			return IPCheckBadPacket
		}

		rdlen := int(binary.BigEndian.Uint16(rec[8:10]))
		recLen := RecordFixedSize + rdlen
		if recLen > cur.len() {
			p.reject("record length is greater than remaining length", recLen)
			return IPCheckBadPacket
		}

		switch binary.BigEndian.Uint16(rec[0:2]) {
		case TypeA:
			if rdlen != IPv4AddrLen {
				p.reject("rdata length does not match an ipv4 address", rdlen)
				return IPCheckBadPacket
			}
			if set.Contains(rec[RecordFixedSize:recLen], false) {
				return IPCheckInRange
			}
			return IPCheckNotInRange
		case TypeAAAA:
			if rdlen != IPv6AddrLen {
				p.reject("rdata length does not match an ipv6 address", rdlen)
				return IPCheckBadPacket
			}
			if set.Contains(rec[RecordFixedSize:recLen], true) {
				return IPCheckInRange
			}
			return IPCheckNotInRange
		}

		cur.advance(recLen)
	}

	return IPCheckNotFound
}
