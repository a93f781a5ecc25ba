package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"ChainVault/internal/logger"
)

const (
	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "chainvault/1"

	// defaultIdleTimeout closes connections without traffic.
	defaultIdleTimeout = 30 * time.Second
)

// Config holds the configuration for a Node.
type Config struct {
	PrivateKey  ed25519.PrivateKey // PrivateKey is the node's ed25519 private key
	ListenAddr  string             // ListenAddr is the address to listen on; empty for dial-only nodes
	IdleTimeout time.Duration      // IdleTimeout closes idle connections (default 30s)
}

// Handler answers one request. The returned bytes are sent back on the same stream.
type Handler func(p *Peer, data []byte) ([]byte, error)

// Node is a QUIC endpoint that serves requests and dials remote nodes on demand.
type Node struct {
	publicKey  ed25519.PublicKey // publicKey is the node's ed25519 public key
	listenAddr string            // listenAddr is the address to listen on
	tlsConfig  *tls.Config       // tlsConfig is the TLS configuration
	quicConfig *quic.Config      // quicConfig is the QUIC configuration

	listener *quic.Listener // listener is the QUIC listener

	peers   map[string]*Peer // peers maps dialed address to peer
	peersMu sync.Mutex       // peersMu protects peers

	onRequest  Handler      // onRequest handles incoming requests
	handlersMu sync.RWMutex // handlersMu protects onRequest

	ctx    context.Context    // ctx is the node's context
	cancel context.CancelFunc // cancel cancels the node's context
	wg     sync.WaitGroup     // wg waits for goroutines to finish
}

// NewNode creates a new network node.
func NewNode(cfg Config) (*Node, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	idle := cfg.IdleTimeout
	if idle == 0 {
		idle = defaultIdleTimeout
	}

	cert, err := generateCertificate(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates:       []tls.Certificate{cert},
		ClientAuth:         tls.RequireAnyClientCert,
		InsecureSkipVerify: true, // peers are identified by their ed25519 key
		NextProtos:         []string{alpnProtocol},
	}

	quicConfig := &quic.Config{
		MaxIdleTimeout:  idle,
		KeepAlivePeriod: idle / 3,
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		publicKey:  cfg.PrivateKey.Public().(ed25519.PublicKey),
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: quicConfig,
		peers:      make(map[string]*Peer),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// PublicKey returns the node's public key.
func (n *Node) PublicKey() ed25519.PublicKey {
	return n.publicKey
}

// Addr returns the listener's address. Returns empty string if not started.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}

	return n.listener.Addr().String()
}

// Start starts listening for incoming connections.
func (n *Node) Start() error {
	if n.listenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	listener, err := quic.ListenAddr(n.listenAddr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	return nil
}

// OnRequest sets the handler for incoming requests.
func (n *Node) OnRequest(fn Handler) {
	n.handlersMu.Lock()
	n.onRequest = fn
	n.handlersMu.Unlock()
}

// Request sends data to addr and waits for the response, dialing if needed.
// A failed request drops the cached connection so the next call redials.
func (n *Node) Request(ctx context.Context, addr string, data []byte) ([]byte, error) {
	peer, err := n.peer(ctx, addr)
	if err != nil {
		return nil, err
	}

	resp, err := peer.Request(ctx, data)
	if err != nil {
		n.forget(addr, peer)
		return nil, err
	}

	return resp, nil
}

// Connect dials addr and caches the connection.
func (n *Node) Connect(ctx context.Context, addr string) (*Peer, error) {
	conn, err := quic.DialAddr(ctx, addr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	peer, err := n.setupPeer(conn, addr)
	if err != nil {
		conn.CloseWithError(1, "setup failed")
		return nil, err
	}

	n.peersMu.Lock()
	if old, ok := n.peers[addr]; ok {
		old.Close()
	}
	n.peers[addr] = peer
	n.peersMu.Unlock()

	return peer, nil
}

// Peers returns the number of cached outgoing connections.
func (n *Node) Peers() int {
	n.peersMu.Lock()
	defer n.peersMu.Unlock()

	return len(n.peers)
}

// Close stops the node and closes all connections.
func (n *Node) Close() error {
	n.cancel()

	if n.listener != nil {
		n.listener.Close()
	}

	n.peersMu.Lock()
	for _, p := range n.peers {
		p.Close()
	}
	n.peers = make(map[string]*Peer)
	n.peersMu.Unlock()

	n.wg.Wait()

	return nil
}

// peer returns the cached connection to addr or dials a new one.
func (n *Node) peer(ctx context.Context, addr string) (*Peer, error) {
	n.peersMu.Lock()
	p, ok := n.peers[addr]
	n.peersMu.Unlock()

	if ok && !p.closed.Load() {
		return p, nil
	}

	return n.Connect(ctx, addr)
}

// forget removes p from the cache if it is still the entry for addr.
func (n *Node) forget(addr string, p *Peer) {
	n.peersMu.Lock()
	if n.peers[addr] == p {
		delete(n.peers, addr)
	}
	n.peersMu.Unlock()

	p.Close()
}

// acceptLoop accepts incoming connections.
func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			return // listener closed
		}

		if _, err := n.setupPeer(conn, conn.RemoteAddr().String()); err != nil {
			logger.Debug("reject connection", "remote", conn.RemoteAddr(), "error", err)
			conn.CloseWithError(1, "setup failed")
		}
	}
}

// setupPeer wraps a QUIC connection and starts serving its request streams.
func (n *Node) setupPeer(conn *quic.Conn, addr string) (*Peer, error) {
	pubKey, err := extractPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("extract public key: %w", err)
	}

	peer := &Peer{
		publicKey: pubKey,
		address:   addr,
		conn:      conn,
		node:      n,
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		peer.acceptStreams(n.ctx)
	}()

	return peer, nil
}

// callOnRequest calls the onRequest handler if set.
func (n *Node) callOnRequest(p *Peer, data []byte) ([]byte, error) {
	n.handlersMu.RLock()
	fn := n.onRequest
	n.handlersMu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("no request handler registered")
	}

	return fn(p, data)
}
