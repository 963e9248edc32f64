// Package relay implements the split-horizon resolution service. Each
// client query is forwarded to a domestic ("china") and a trusted upstream
// group; replies are validated at the wire layer and the domestic answer
// is kept only when its address falls inside the designated range.
// Everything else - tagging, AAAA filtering, reply buffering, timeout
// sweeping - hangs off that decision.
package relay

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/haukened/splitdns/internal/dns/common/clock"
	"github.com/haukened/splitdns/internal/dns/common/log"
	"github.com/haukened/splitdns/internal/dns/repos/nametag"
	"github.com/haukened/splitdns/internal/dns/wire"
)

// maxPending bounds the in-flight query table; ids are 16-bit.
const maxPending = 65536

// Options configures a Relay.
type Options struct {
	Parser   *wire.Parser
	Sender   Sender
	ChnRoute wire.AddrSet // designated-address-range set, required
	Tags     Tagger       // optional domain tagging; nil means DefaultTag for every name
	Clock    clock.Clock
	Logger   log.Logger

	// Timeout is how long a forwarded query may wait for upstream replies.
	Timeout time.Duration
	// DefaultTag applies when Tags is nil or lists no match was loaded for.
	DefaultTag nametag.Tag
	// AcceptNoIP accepts domestic replies that carry no A/AAAA record
	// instead of waiting for the trusted group.
	AcceptNoIP bool
	// FilterAAAA answers every AAAA query with an empty reply locally.
	FilterAAAA bool
	// RepeatTimes is how many duplicates of each query go to every trusted
	// server, to survive lossy paths. Minimum 1.
	RepeatTimes int
}

// pendingQuery is the per-query state kept between forward and reply.
type pendingQuery struct {
	originID     uint16
	client       netip.AddrPort
	deadline     time.Time
	tag          nametag.Tag
	chinaDropped bool   // domestic reply arrived and was filtered
	trustReply   []byte // trusted reply buffered while the domestic verdict is open
}

// Relay owns the pending-query table and the accept/filter decision
// machinery. Safe for concurrent use by transport goroutines.
type Relay struct {
	opts Options

	mu      sync.Mutex
	nextID  uint16
	pending map[uint16]*pendingQuery
}

// New constructs a Relay.
func New(opts Options) *Relay {
	if opts.RepeatTimes < 1 {
		opts.RepeatTimes = 1
	}
	return &Relay{
		opts:    opts,
		pending: make(map[uint16]*pendingQuery),
	}
}

// PendingCount returns the number of in-flight queries.
func (r *Relay) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// HandleQuery validates a client packet, tags its name, and forwards it to
// the upstream groups under a relay-unique transaction id. Invalid packets
// are dropped silently; the wire layer has already logged why.
func (r *Relay) HandleQuery(pkt []byte, client netip.AddrPort) {
	var name wire.NameBuffer
	nameLen, ok := r.opts.Parser.CheckQuery(pkt, &name)
	if !ok {
		return
	}
	qtype := wire.QType(pkt, nameLen)

	tag := r.opts.DefaultTag
	if r.opts.Tags != nil {
		tag = r.opts.Tags.Decide(name.String())
	}

	r.opts.Logger.Debug(map[string]any{
		"name":   name.String(),
		"client": client.String(),
		"tag":    tag.String(),
	}, "query received")

	if r.opts.FilterAAAA && qtype == wire.TypeAAAA {
		r.opts.Logger.Debug(map[string]any{"name": name.String()}, "AAAA query answered locally with no answer")
		r.replyNoAnswer(pkt, nameLen, client)
		return
	}

	r.mu.Lock()
	if len(r.pending) >= maxPending {
		r.mu.Unlock()
		r.opts.Logger.Error(nil, "pending query table is full, refusing to serve")
		return
	}
	id := r.nextID
	for {
		if _, taken := r.pending[id]; !taken {
			break
		}
		id++
	}
	r.nextID = id + 1
	r.pending[id] = &pendingQuery{
		originID: wire.ID(pkt),
		client:   client,
		deadline: r.opts.Clock.Now().Add(r.opts.Timeout),
		tag:      tag,
	}
	r.mu.Unlock()

	wire.SetID(pkt, id)

	if tag != nametag.TagGFW {
		r.forward(GroupChina, pkt, 1, name.String())
	}
	if tag != nametag.TagChn {
		r.forward(GroupTrust, pkt, r.opts.RepeatTimes, name.String())
	}
}

func (r *Relay) forward(g Group, pkt []byte, times int, name string) {
	r.opts.Logger.Debug(map[string]any{"name": name, "group": g.String()}, "forwarding query")
	if err := r.opts.Sender.SendToGroup(g, pkt, times); err != nil {
		r.opts.Logger.Error(map[string]any{"group": g.String(), "error": err.Error()}, "failed to send query upstream")
	}
}

// HandleReply validates an upstream packet and decides whether to deliver,
// buffer, or filter it.
func (r *Relay) HandleReply(g Group, pkt []byte) {
	var name wire.NameBuffer
	nameLen, ok := r.opts.Parser.CheckReply(pkt, &name)
	if !ok {
		return
	}
	id := wire.ID(pkt)

	r.mu.Lock()
	p, exists := r.pending[id]
	r.mu.Unlock()
	if !exists {
		r.opts.Logger.Debug(map[string]any{
			"name": name.String(), "group": g.String(), "id": id,
		}, "reply ignored, no pending query")
		return
	}

	if g == GroupChina {
		r.handleChinaReply(pkt, nameLen, id, p, name.String())
	} else {
		r.handleTrustReply(pkt, id, p, name.String())
	}
}

func (r *Relay) handleChinaReply(pkt []byte, nameLen int, id uint16, p *pendingQuery, name string) {
	if p.tag == nametag.TagChn || r.useChinaReply(pkt, nameLen, name) {
		r.opts.Logger.Debug(map[string]any{"name": name, "group": "chinadns", "id": id}, "reply accepted")
		r.deliver(pkt, id, p)
		return
	}

	r.opts.Logger.Debug(map[string]any{"name": name, "group": "chinadns", "id": id}, "reply filtered")

	r.mu.Lock()
	buffered := p.trustReply
	if buffered == nil {
		p.chinaDropped = true
	}
	r.mu.Unlock()

	// the trusted group answered first; release its buffered reply now
	if buffered != nil {
		r.opts.Logger.Debug(map[string]any{"name": name, "group": "trustdns", "id": id}, "buffered reply accepted")
		r.deliver(buffered, id, p)
	}
}

func (r *Relay) handleTrustReply(pkt []byte, id uint16, p *pendingQuery, name string) {
	r.mu.Lock()
	release := p.tag == nametag.TagGFW || p.chinaDropped
	if !release && p.trustReply == nil {
		p.trustReply = append([]byte(nil), pkt...)
		r.mu.Unlock()
		r.opts.Logger.Debug(map[string]any{"name": name, "group": "trustdns", "id": id}, "reply buffered awaiting domestic verdict")
		return
	}
	r.mu.Unlock()

	if release {
		r.opts.Logger.Debug(map[string]any{"name": name, "group": "trustdns", "id": id}, "reply accepted")
		r.deliver(pkt, id, p)
		return
	}
	r.opts.Logger.Debug(map[string]any{"name": name, "group": "trustdns", "id": id}, "reply ignored, already buffered")
}

// useChinaReply decides whether a domestic reply for a tag-none name may
// be delivered. Only address-bearing queries are classified; everything
// else is taken as-is.
func (r *Relay) useChinaReply(pkt []byte, nameLen int, name string) bool {
	qtype := wire.QType(pkt, nameLen)
	if qtype != wire.TypeA && qtype != wire.TypeAAAA {
		return true
	}

	switch verdict := r.opts.Parser.ScanAnswerAddr(pkt, nameLen, r.opts.ChnRoute); verdict {
	case wire.IPCheckInRange:
		return true
	case wire.IPCheckNotFound:
		r.opts.Logger.Debug(map[string]any{
			"name": name, "accept": r.opts.AcceptNoIP,
		}, "no address found in domestic reply")
		return r.opts.AcceptNoIP
	default: // not in range, or bad packet
		return false
	}
}

// deliver restores the client's transaction id, sends the reply, and
// retires the pending entry.
func (r *Relay) deliver(pkt []byte, id uint16, p *pendingQuery) {
	r.mu.Lock()
	_, live := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if !live {
		return // a racing reply already answered this query
	}

	wire.SetID(pkt, p.originID)
	if err := r.opts.Sender.SendToClient(pkt, p.client); err != nil {
		r.opts.Logger.Error(map[string]any{
			"client": p.client.String(), "error": err.Error(),
		}, "failed to send reply to client")
	}
}

// replyNoAnswer turns the query into an empty NOERROR reply and returns it
// to the client without consulting any upstream.
func (r *Relay) replyNoAnswer(pkt []byte, nameLen int, client netip.AddrPort) {
	wire.SetReply(pkt)
	reply := wire.StripAnswers(pkt, nameLen)
	if err := r.opts.Sender.SendToClient(reply, client); err != nil {
		r.opts.Logger.Error(map[string]any{
			"client": client.String(), "error": err.Error(),
		}, "failed to send reply to client")
	}
}

// Run sweeps the pending table until ctx is cancelled, expiring queries
// whose upstreams never answered.
func (r *Relay) Run(ctx context.Context) {
	interval := r.opts.Timeout / 4
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expire(r.opts.Clock.Now())
		}
	}
}

// expire drops every pending query whose deadline has passed.
func (r *Relay) expire(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		if !p.deadline.After(now) {
			r.opts.Logger.Warn(map[string]any{"id": id}, "upstream reply timeout")
			delete(r.pending, id)
		}
	}
}
