package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/haukened/splitdns/internal/dns/common/log"
)

// Parser validates DNS packets received from untrusted peers. It holds no
// state beyond the logger, so a single instance may be shared by any
// number of goroutines. Rejections are logged with a distinguishing
// reason; logging never changes a verdict.
type Parser struct {
	logger log.Logger
}

// NewParser returns a Parser that reports rejection diagnostics to logger.
func NewParser(logger log.Logger) *Parser {
	return &Parser{logger: logger}
}

// CheckQuery validates pkt as a DNS query. When name is non-nil the
// question name is decoded into it. The returned nameLen is the encoded
// question name length, needed later to locate the answer section without
// re-parsing. On a false verdict both outputs are undefined.
func (p *Parser) CheckQuery(pkt []byte, name *NameBuffer) (nameLen int, ok bool) {
	return p.checkPacket(pkt, true, name)
}

// CheckReply validates pkt as a DNS reply. Semantics match CheckQuery with
// the direction fixed to reply.
func (p *Parser) CheckReply(pkt []byte, name *NameBuffer) (nameLen int, ok bool) {
	return p.checkPacket(pkt, false, name)
}

func (p *Parser) checkPacket(pkt []byte, isQuery bool, name *NameBuffer) (int, bool) {
	if len(pkt) < MinPacketSize {
		p.reject("dns packet is too short", len(pkt))
		return 0, false
	}
	if len(pkt) > MaxPacketSize {
		p.reject("dns packet is too long", len(pkt))
		return 0, false
	}

	flags := binary.BigEndian.Uint16(pkt[2:4])
	if isReply := flags&flagQR != 0; isReply == isQuery {
		p.reject("header qr bit does not match packet direction", int(flags>>15))
		return 0, false
	}
	if opcode := (flags >> opcodeShift) & opcodeMask; opcode != OpcodeQuery {
		p.reject("this is not a standard query, opcode", int(opcode))
		return 0, false
	}
	if qd := binary.BigEndian.Uint16(pkt[4:6]); qd != 1 {
		p.reject("there should be one and only one question", int(qd))
		return 0, false
	}

	// locate the question name terminator within the claimed length
	question := pkt[HeaderSize:]
	term := bytes.IndexByte(question, 0)
	if term < 0 {
		p.reject("domain name end byte not found", len(question))
		return 0, false
	}
	nameLen := term + 1
	if nameLen > NameEncMax {
		p.reject("encoded domain name is too long", nameLen)
		return 0, false
	}

	if name != nil {
		if err := DecodeName(name, question[:nameLen]); err != nil {
			p.logger.Debug(map[string]any{"error": err.Error()}, "rejected dns packet")
			return 0, false
		}
	}

	rest := question[nameLen:]
	if len(rest) < QuestionFixedSize {
		p.reject("remaining length is less than question fixed size", len(rest))
		return 0, false
	}
	if class := binary.BigEndian.Uint16(rest[2:4]); class != ClassIN {
		p.reject("only the internet query class is supported", int(class))
		return 0, false
	}

	return nameLen, true
}

func (p *Parser) reject(reason string, value int) {
	p.logger.Debug(map[string]any{"value": value}, "rejected dns packet: "+reason)
}
