// Package transport owns the relay's UDP sockets: one client-facing
// listener and one connected socket per upstream server. It moves raw
// buffers in and out; every DNS decision lives in the relay service.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/haukened/splitdns/internal/dns/common/log"
	"github.com/haukened/splitdns/internal/dns/relay"
	"github.com/haukened/splitdns/internal/dns/wire"
)

// Handler receives every packet the transport reads. Buffers are owned by
// the handler once passed; the transport never reuses them.
type Handler interface {
	HandleQuery(pkt []byte, client netip.AddrPort)
	HandleReply(g relay.Group, pkt []byte)
}

// upstreamConn pairs a connected UDP socket with its group and address,
// for read-loop dispatch and log context.
type upstreamConn struct {
	group relay.Group
	addr  string
	conn  *net.UDPConn
}

// UDPRelay implements the datagram transport and the relay.Sender
// contract over it.
type UDPRelay struct {
	bindAddr  string
	upstreams []*upstreamConn
	logger    log.Logger

	conn *net.UDPConn

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
}

// NewUDPRelay creates a transport bound to bindAddr that forwards to the
// given china and trust server addresses (ip:port).
func NewUDPRelay(bindAddr string, china, trust []string, logger log.Logger) (*UDPRelay, error) {
	t := &UDPRelay{
		bindAddr: bindAddr,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	for _, addr := range china {
		t.upstreams = append(t.upstreams, &upstreamConn{group: relay.GroupChina, addr: addr})
	}
	for _, addr := range trust {
		t.upstreams = append(t.upstreams, &upstreamConn{group: relay.GroupTrust, addr: addr})
	}
	if len(t.upstreams) == 0 {
		return nil, fmt.Errorf("no upstream servers configured")
	}
	return t, nil
}

// Address returns the client-facing address: the live socket address once
// started, so a ":0" bind reports its assigned port.
func (t *UDPRelay) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn != nil {
		return t.conn.LocalAddr().String()
	}
	return t.bindAddr
}

// Start binds the listen socket, connects every upstream socket, and
// launches the read loops.
func (t *UDPRelay) Start(ctx context.Context, handler Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("UDP transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address %s: %w", t.bindAddr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP socket on %s: %w", t.bindAddr, err)
	}
	t.conn = conn

	for _, up := range t.upstreams {
		raddr, err := net.ResolveUDPAddr("udp", up.addr)
		if err != nil {
			t.closeLocked()
			return fmt.Errorf("failed to resolve upstream %s: %w", up.addr, err)
		}
		up.conn, err = net.DialUDP("udp", nil, raddr)
		if err != nil {
			t.closeLocked()
			return fmt.Errorf("failed to connect upstream %s: %w", up.addr, err)
		}
	}

	t.running = true
	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.bindAddr,
		"upstreams": len(t.upstreams),
	}, "relay transport started")

	go t.clientLoop(ctx, handler)
	for _, up := range t.upstreams {
		go t.upstreamLoop(ctx, up, handler)
	}
	return nil
}

// Stop shuts down every socket. Read loops drain out on their own.
func (t *UDPRelay) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	close(t.stopCh)
	t.closeLocked()
	t.running = false

	t.logger.Info(map[string]any{
		"transport": "udp",
		"address":   t.bindAddr,
	}, "relay transport stopped")
	return nil
}

func (t *UDPRelay) closeLocked() {
	if t.conn != nil {
		_ = t.conn.Close()
	}
	for _, up := range t.upstreams {
		if up.conn != nil {
			_ = up.conn.Close()
		}
	}
}

// clientLoop reads queries from downstream clients.
func (t *UDPRelay) clientLoop(ctx context.Context, handler Handler) {
	// one extra byte so oversized datagrams arrive oversized and fail
	// validation instead of being silently truncated
	buffer := make([]byte, wire.MaxPacketSize+1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
			n, clientAddr, err := t.conn.ReadFromUDPAddrPort(buffer)
			if err != nil {
				if !t.isRunning() {
					return
				}
				t.logger.Warn(map[string]any{"error": err.Error()}, "failed to read client packet")
				continue
			}
			pkt := make([]byte, n)
			copy(pkt, buffer[:n])
			go handler.HandleQuery(pkt, clientAddr)
		}
	}
}

// upstreamLoop reads replies from one upstream server.
func (t *UDPRelay) upstreamLoop(ctx context.Context, up *upstreamConn, handler Handler) {
	buffer := make([]byte, wire.MaxPacketSize+1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
			n, err := up.conn.Read(buffer)
			if err != nil {
				if !t.isRunning() {
					return
				}
				t.logger.Warn(map[string]any{
					"upstream": up.addr,
					"error":    err.Error(),
				}, "failed to read upstream packet")
				continue
			}
			pkt := make([]byte, n)
			copy(pkt, buffer[:n])
			go handler.HandleReply(up.group, pkt)
		}
	}
}

func (t *UDPRelay) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

// SendToClient sends a reply to a downstream client.
func (t *UDPRelay) SendToClient(pkt []byte, client netip.AddrPort) error {
	_, err := t.conn.WriteToUDPAddrPort(pkt, client)
	return err
}

// SendToGroup sends a query to every server in a group, repeated times per
// server. Send errors are logged per server; the first is returned.
func (t *UDPRelay) SendToGroup(g relay.Group, pkt []byte, times int) error {
	var firstErr error
	for _, up := range t.upstreams {
		if up.group != g {
			continue
		}
		for i := 0; i < times; i++ {
			if _, err := up.conn.Write(pkt); err != nil {
				t.logger.Error(map[string]any{
					"upstream": up.addr,
					"error":    err.Error(),
				}, "failed to send query upstream")
				if firstErr == nil {
					firstErr = err
				}
				break
			}
		}
	}
	return firstErr
}

var _ relay.Sender = (*UDPRelay)(nil)
