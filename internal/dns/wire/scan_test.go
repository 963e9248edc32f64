package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/haukened/splitdns/internal/dns/common/log"
)

// fakeSet memberships are keyed by the raw address bytes.
type fakeSet struct {
	members map[string]bool
}

func (s fakeSet) Contains(addr []byte, v6 bool) bool {
	if v6 && len(addr) != IPv6AddrLen || !v6 && len(addr) != IPv4AddrLen {
		return false
	}
	return s.members[string(addr)]
}

// allowNone is an AddrSet with no members.
type allowNone struct{}

func (allowNone) Contains([]byte, bool) bool { return false }

// answer encodes one answer record with an explicit declared rdata length,
// which may disagree with the actual data for malformed fixtures.
func answer(name []byte, rtype, class uint16, declaredLen int, rdata []byte) []byte {
	out := append([]byte{}, name...)
	out = binary.BigEndian.AppendUint16(out, rtype)
	out = binary.BigEndian.AppendUint16(out, class)
	out = binary.BigEndian.AppendUint32(out, 300) // TTL
	out = binary.BigEndian.AppendUint16(out, uint16(declaredLen))
	return append(out, rdata...)
}

func TestScanAnswerAddr(t *testing.T) {
	p := NewParser(log.NewNoopLogger())

	chnIPv4 := []byte{114, 114, 114, 114}
	otherIPv4 := []byte{8, 8, 8, 8}
	chnIPv6 := []byte{0x24, 0x08, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	set := fakeSet{members: map[string]bool{
		string(chnIPv4): true,
		string(chnIPv6): true,
	}}

	q := question("www.google.cn", TypeA, ClassIN)
	ptr := []byte{0xC0, 0x0C} // compressed name pointing at the question
	cname := encodeName("cdn.google.cn")

	tests := []struct {
		name    string
		answers [][]byte
		want    IPCheck
	}{
		{
			name:    "no answers",
			answers: nil,
			want:    IPCheckNotFound,
		},
		{
			name:    "A record inside the designated range",
			answers: [][]byte{answer(ptr, TypeA, ClassIN, IPv4AddrLen, chnIPv4)},
			want:    IPCheckInRange,
		},
		{
			name:    "A record outside the designated range",
			answers: [][]byte{answer(ptr, TypeA, ClassIN, IPv4AddrLen, otherIPv4)},
			want:    IPCheckNotInRange,
		},
		{
			name:    "AAAA record inside the designated range",
			answers: [][]byte{answer(ptr, TypeAAAA, ClassIN, IPv6AddrLen, chnIPv6)},
			want:    IPCheckInRange,
		},
		{
			name:    "uncompressed answer name",
			answers: [][]byte{answer(encodeName("www.google.cn"), TypeA, ClassIN, IPv4AddrLen, chnIPv4)},
			want:    IPCheckInRange,
		},
		{
			name: "first address record wins after a CNAME",
			answers: [][]byte{
				answer(ptr, TypeCNAME, ClassIN, len(cname), cname),
				answer(ptr, TypeA, ClassIN, IPv4AddrLen, otherIPv4),
			},
			want: IPCheckNotInRange,
		},
		{
			name:    "CNAME only",
			answers: [][]byte{answer(ptr, TypeCNAME, ClassIN, len(cname), cname)},
			want:    IPCheckNotFound,
		},
		{
			name:    "A record with six byte rdata",
			answers: [][]byte{answer(ptr, TypeA, ClassIN, 6, []byte{1, 2, 3, 4, 5, 6})},
			want:    IPCheckBadPacket,
		},
		{
			name:    "AAAA record with ipv4 sized rdata",
			answers: [][]byte{answer(ptr, TypeAAAA, ClassIN, IPv4AddrLen, otherIPv4)},
			want:    IPCheckBadPacket,
		},
		{
			name:    "chaos record class",
			answers: [][]byte{answer(ptr, TypeA, 3, IPv4AddrLen, chnIPv4)},
			want:    IPCheckBadPacket,
		},
		{
			name:    "declared rdata length overruns the packet",
			answers: [][]byte{answer(ptr, TypeCNAME, ClassIN, 500, cname)},
			want:    IPCheckBadPacket,
		},
		{
			name:    "invalid label length in answer name",
			answers: [][]byte{answer([]byte{64, 0}, TypeA, ClassIN, IPv4AddrLen, chnIPv4)},
			want:    IPCheckBadPacket,
		},
		{
			name:    "answer count exceeds actual records",
			answers: [][]byte{nil, nil}, // two counted, zero present
			want:    IPCheckBadPacket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := [][]byte{q}
			var count int
			for _, a := range tt.answers {
				count++
				if a != nil {
					body = append(body, a)
				}
			}
			pkt := buildPacket(flagsReply, 1, uint16(count), body...)

			nameLen, ok := p.CheckReply(pkt, nil)
			require.True(t, ok, "fixture must pass reply validation")

			assert.Equal(t, tt.want, p.ScanAnswerAddr(pkt, nameLen, set))
		})
	}
}

func TestScanAnswerAddrEndToEnd(t *testing.T) {
	// full round trip against the x/net reference encoder, compression on
	msg := dnsmessage.Message{
		Header: dnsmessage.Header{ID: 7, Response: true, RecursionAvailable: true},
		Questions: []dnsmessage.Question{{
			Name:  dnsmessage.MustNewName("bilibili.com."),
			Type:  dnsmessage.TypeA,
			Class: dnsmessage.ClassINET,
		}},
		Answers: []dnsmessage.Resource{{
			Header: dnsmessage.ResourceHeader{
				Name:  dnsmessage.MustNewName("bilibili.com."),
				Type:  dnsmessage.TypeA,
				Class: dnsmessage.ClassINET,
				TTL:   60,
			},
			Body: &dnsmessage.AResource{A: [4]byte{114, 114, 114, 114}},
		}},
	}
	pkt, err := msg.Pack()
	require.NoError(t, err)

	p := NewParser(log.NewNoopLogger())
	var name NameBuffer
	nameLen, ok := p.CheckReply(pkt, &name)
	require.True(t, ok)
	assert.Equal(t, "bilibili.com", name.String())
	require.Equal(t, uint16(TypeA), QType(pkt, nameLen))

	set := fakeSet{members: map[string]bool{string([]byte{114, 114, 114, 114}): true}}
	assert.Equal(t, IPCheckInRange, p.ScanAnswerAddr(pkt, nameLen, set))
	assert.Equal(t, IPCheckNotInRange, p.ScanAnswerAddr(pkt, nameLen, allowNone{}))
}

func TestIPCheckString(t *testing.T) {
	assert.Equal(t, "bad_packet", IPCheckBadPacket.String())
	assert.Equal(t, "in_range", IPCheckInRange.String())
	assert.Equal(t, "not_in_range", IPCheckNotInRange.String())
	assert.Equal(t, "not_found", IPCheckNotFound.String())
	assert.Equal(t, "unknown", IPCheck(9).String())
}
