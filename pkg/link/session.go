package link

import (
	"container/list"
	"time"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
)

type sessionState int

const (
	stateIdle sessionState = iota
	stateAwaitingAck
)

// Stats are per-peer link quality counters. They survive session resets.
type Stats struct {
	// Retries counts retransmissions of packets sent to the peer.
	Retries uint64
	// Drops counts inbound frames from the peer discarded without
	// delivery (duplicate suppression).
	Drops uint64
	// CorrectedErrors totals FEC-repaired symbols on frames from the peer.
	CorrectedErrors uint64
}

// session is the transient per-peer state owned by the engine goroutine.
// It is created lazily on first send or receive and evicted
// least-recently-used when the table is full; nothing here is persisted.
type session struct {
	peer  frame.NodeID
	state sessionState

	lastSentSeq  uint8
	lastAckedSeq uint8

	rxSeq uint8
	hasRx bool

	pendingRetries int
	backoff        time.Duration
	deadline       time.Time

	// in-flight transmission
	pkt          *frame.Packet
	symbols      []byte
	retrySymbols []byte
	waiter       *sendReq
	queue        []*sendReq

	stats Stats
	elem  *list.Element
}

// reset returns the session to Idle. Statistics and receive-side duplicate
// tracking are kept; the retransmission timer is cleared together with the
// state so a session is never AwaitingAck without an armed deadline.
func (s *session) reset() {
	s.state = stateIdle
	s.pendingRetries = 0
	s.backoff = 0
	s.deadline = time.Time{}
	s.pkt = nil
	s.symbols = nil
	s.retrySymbols = nil
	s.waiter = nil
}

// sessionTable is a fixed-capacity LRU table keyed by peer id. The list
// front is the most recently used session.
type sessionTable struct {
	capacity int
	byPeer   map[frame.NodeID]*session
	lru      *list.List
}

func newSessionTable(capacity int) *sessionTable {
	return &sessionTable{
		capacity: capacity,
		byPeer:   make(map[frame.NodeID]*session, capacity),
		lru:      list.New(),
	}
}

func (t *sessionTable) get(peer frame.NodeID) *session {
	s := t.byPeer[peer]
	if s != nil {
		t.lru.MoveToFront(s.elem)
	}
	return s
}

// getOrCreate returns the session for peer, creating it if needed. When
// creation overflows the capacity the least-recently-used session is
// evicted and returned so the caller can fail its pending work.
func (t *sessionTable) getOrCreate(peer frame.NodeID) (s, evicted *session) {
	if s = t.get(peer); s != nil {
		return s, nil
	}
	if t.lru.Len() >= t.capacity {
		evicted = t.evict()
	}
	s = &session{peer: peer, lastSentSeq: 0xff}
	s.elem = t.lru.PushFront(s)
	t.byPeer[peer] = s
	return s, evicted
}

// evict removes the least-recently-used session, preferring idle ones.
func (t *sessionTable) evict() *session {
	victim := t.lru.Back()
	for e := t.lru.Back(); e != nil; e = e.Prev() {
		if e.Value.(*session).state == stateIdle {
			victim = e
			break
		}
	}
	s := victim.Value.(*session)
	t.lru.Remove(victim)
	delete(t.byPeer, s.peer)
	return s
}

func (t *sessionTable) all() []*session {
	out := make([]*session, 0, t.lru.Len())
	for e := t.lru.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*session))
	}
	return out
}

// SessionSnapshot is a read-only copy of one session for diagnostics.
type SessionSnapshot struct {
	Peer           frame.NodeID
	State          string
	LastSentSeq    uint8
	LastAckedSeq   uint8
	PendingRetries int
	QueueLen       int
	// LastRxSeq is -1 until a packet has been received from the peer.
	LastRxSeq int
	Deadline  time.Time
	Stats     Stats
}

func (s *session) snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		Peer:           s.peer,
		State:          "idle",
		LastSentSeq:    s.lastSentSeq,
		LastAckedSeq:   s.lastAckedSeq,
		PendingRetries: s.pendingRetries,
		QueueLen:       len(s.queue),
		LastRxSeq:      -1,
		Deadline:       s.deadline,
		Stats:          s.stats,
	}
	if s.state == stateAwaitingAck {
		snap.State = "awaiting-ack"
		if s.pendingRetries > 0 {
			snap.State = "retrying"
		}
	}
	if s.hasRx {
		snap.LastRxSeq = int(s.rxSeq)
	}
	return snap
}
