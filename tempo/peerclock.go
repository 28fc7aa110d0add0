package tempo

import (
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// multicastGroup and multicastPort pick an address in the administratively
// scoped range (RFC 2365) reserved for local-network use, the same band
// Ableton Link itself beacons on; this adapter does not speak Link's wire
// format, only a local gossip protocol with the same locality properties.
const (
	multicastGroup = "239.192.37.71"
	multicastPort  = 37071
	beaconInterval = 250 * time.Millisecond
	peerTimeout    = 3 * time.Second
)

// beaconMsg is the gossip datagram. Field names and JSON-tag style follow
// the corpus's own control-message shape (rustyguts-bken/server's
// ControlMsg): a flat, mostly-optional struct keyed by Type.
type beaconMsg struct {
	Type      string  `json:"type"`
	PeerID    string  `json:"peer_id"`
	BPM       float64 `json:"bpm,omitempty"`
	Beat      float64 `json:"beat,omitempty"`
	Playing   bool    `json:"playing,omitempty"`
	Timestamp int64   `json:"ts"` // sender's Unix nanos
}

// peerClock is the network session object behind Sync: one goroutine
// broadcasts this process's state at beaconInterval, one goroutine
// receives peers' beacons and folds them into a peer table. It exposes
// only numeric beat/peer-count/publish primitives to Sync; no JSON/UDP
// detail crosses that boundary.
type peerClock struct {
	log    *slog.Logger
	selfID string

	conn *net.UDPConn
	addr *net.UDPAddr

	stop_ chan struct{}
	wg    sync.WaitGroup

	mu        sync.Mutex
	tempo     float64
	playing   bool
	epoch     time.Time // when beat 0 occurred, for beatAt's elapsed math
	peers     map[string]time.Time

	onPeers     func(n int)
	onTempo     func(bpm float64)
	onTransport func(playing bool)
}

func newPeerClock(log *slog.Logger) *peerClock {
	return &peerClock{
		log:    log,
		selfID: uuid.New().String(),
		stop_:  make(chan struct{}),
		peers:  make(map[string]time.Time),
		tempo:  DefaultTempo,
		epoch:  time.Now(),
	}
}

// DefaultTempo mirrors spec's default tempo; duplicated here (rather than
// importing event) to keep the network adapter free of a dependency on
// the data-model package.
const DefaultTempo = 120.0

func (c *peerClock) start() error {
	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(multicastGroup, portStr()))
	if err != nil {
		// Networking unavailable (e.g. sandboxed CI): degrade to a
		// standalone clock with zero peers rather than failing Init.
		c.log.Warn("tempo: multicast resolve failed, running standalone", "err", err)
		return nil
	}
	c.addr = addr

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		c.log.Warn("tempo: multicast listen failed, running standalone", "err", err)
		return nil
	}
	c.conn = conn

	c.wg.Add(2)
	go c.broadcastLoop()
	go c.receiveLoop()
	return nil
}

func portStr() string {
	return "37071"
}

func (c *peerClock) stop() {
	close(c.stop_)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.wg.Wait()
}

func (c *peerClock) broadcastLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(beaconInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop_:
			return
		case <-ticker.C:
			c.sendBeacon("beat")
		}
	}
}

func (c *peerClock) sendBeacon(kind string) {
	if c.conn == nil {
		return
	}
	c.mu.Lock()
	msg := beaconMsg{
		Type:      kind,
		PeerID:    c.selfID,
		BPM:       c.tempo,
		Playing:   c.playing,
		Timestamp: time.Now().UnixNano(),
	}
	c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_, _ = c.conn.WriteToUDP(data, c.addr)
}

func (c *peerClock) receiveLoop() {
	defer c.wg.Done()
	buf := make([]byte, 1024)
	for {
		if c.conn == nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := c.conn.ReadFromUDP(buf)
		select {
		case <-c.stop_:
			return
		default:
		}
		if err != nil {
			continue
		}

		var msg beaconMsg
		if err := json.Unmarshal(buf[:n], &msg); err != nil {
			continue
		}
		if msg.PeerID == c.selfID {
			continue
		}
		c.notePeer(msg)
	}
}

func (c *peerClock) notePeer(msg beaconMsg) {
	c.mu.Lock()
	c.peers[msg.PeerID] = time.Now()
	count := c.countLivePeers()
	playing := c.playing
	c.mu.Unlock()

	if c.onPeers != nil {
		c.onPeers(count)
	}
	if msg.Playing != playing && c.onTransport != nil {
		c.onTransport(msg.Playing)
	}
	if c.onTempo != nil {
		c.onTempo(msg.BPM)
	}
}

// countLivePeers must be called with mu held; it evicts peers that have
// not beaconed within peerTimeout.
func (c *peerClock) countLivePeers() int {
	now := time.Now()
	n := 0
	for id, last := range c.peers {
		if now.Sub(last) > peerTimeout {
			delete(c.peers, id)
			continue
		}
		n++
	}
	return n
}

func (c *peerClock) publishTempo(bpm float64) {
	c.mu.Lock()
	c.tempo = bpm
	c.mu.Unlock()
	c.sendBeacon("tempo")
}

func (c *peerClock) publishTransport(playing bool) {
	c.mu.Lock()
	c.playing = playing
	c.mu.Unlock()
	c.sendBeacon("transport")
}

// beatAt returns the beat position at instant t: elapsed time since epoch
// converted to quarter notes at the current tempo. quantum is accepted for
// symmetry with the spec's GetBeat(quantum) signature but does not affect
// the absolute beat value it returns (see Sync.GetPhase for the quantum
// reduction).
func (c *peerClock) beatAt(t time.Time, quantum int) float64 {
	c.mu.Lock()
	epoch, bpm := c.epoch, c.tempo
	c.mu.Unlock()
	if bpm <= 0 {
		bpm = DefaultTempo
	}
	elapsed := t.Sub(epoch).Seconds()
	return elapsed * bpm / 60.0
}
