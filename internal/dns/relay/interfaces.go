package relay

import (
	"net/netip"

	"github.com/haukened/splitdns/internal/dns/repos/nametag"
)

// Group identifies an upstream server group.
type Group int

const (
	// GroupChina holds the domestic resolvers: fast, but answers for
	// contested names may be poisoned.
	GroupChina Group = iota
	// GroupTrust holds the trusted resolvers reached over a clean path.
	GroupTrust
)

// String returns the textual form of the group.
func (g Group) String() string {
	if g == GroupChina {
		return "chinadns"
	}
	return "trustdns"
}

// Sender sends packets on behalf of the relay. The transport implements
// it; tests substitute a recorder.
type Sender interface {
	// SendToClient sends a reply to a downstream client.
	SendToClient(pkt []byte, client netip.AddrPort) error
	// SendToGroup sends a query to every server in an upstream group,
	// repeated `times` per server.
	SendToGroup(g Group, pkt []byte, times int) error
}

// Tagger classifies domain names against the relay's domain lists.
// nametag.Repository satisfies it.
type Tagger interface {
	Decide(name string) nametag.Tag
}
