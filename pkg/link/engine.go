package link

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/sensorswarm/swarm.go/pkg/link/frame"
	"github.com/sensorswarm/swarm.go/pkg/radio"
)

var (
	// ErrRetriesExhausted indicates a send was abandoned after the
	// configured number of attempts without an acknowledgment.
	ErrRetriesExhausted = errors.New("link: retries exhausted")
	// ErrSessionEvicted indicates the peer session was evicted from the
	// full session table while the send was pending.
	ErrSessionEvicted = errors.New("link: session evicted")
	// ErrStopped indicates the engine is not running.
	ErrStopped = errors.New("link: engine stopped")
)

// Config tunes the ARQ engine. The zero value is usable; unset fields
// fall back to defaults.
type Config struct {
	// MaxRetries is the total number of transmission attempts per send.
	MaxRetries int `yaml:"max_retries"`
	// BaseTimeout is the acknowledgment wait after the first attempt.
	BaseTimeout time.Duration `yaml:"base_timeout"`
	// BackoffMultiplier scales the timeout after every retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	// SessionCapacity bounds the per-peer session table.
	SessionCapacity int `yaml:"session_capacity"`
	// ReceiveWindow is the engine's receive poll granularity.
	ReceiveWindow time.Duration `yaml:"receive_window"`
	// QueueDepth bounds undelivered inbound payloads.
	QueueDepth int `yaml:"queue_depth"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        4,
		BaseTimeout:       200 * time.Millisecond,
		BackoffMultiplier: 2,
		SessionCapacity:   16,
		ReceiveWindow:     20 * time.Millisecond,
		QueueDepth:        32,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxRetries < 1 {
		c.MaxRetries = def.MaxRetries
	}
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = def.BaseTimeout
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = def.BackoffMultiplier
	}
	if c.SessionCapacity < 1 {
		c.SessionCapacity = def.SessionCapacity
	}
	if c.ReceiveWindow <= 0 {
		c.ReceiveWindow = def.ReceiveWindow
	}
	if c.QueueDepth < 1 {
		c.QueueDepth = def.QueueDepth
	}
	return c
}

// Delivery is one payload handed up to the application.
type Delivery struct {
	Peer    frame.NodeID
	Payload []byte
}

type sendReq struct {
	peer    frame.NodeID
	payload []byte
	done    chan error
}

// Engine is the link state machine. Run must be active for Send and the
// receive path to make progress.
type Engine struct {
	id    frame.NodeID
	rt    radio.Transceiver
	cfg   Config
	codec *Codec

	mu       sync.Mutex // guards sessions for snapshot readers
	sessions *sessionTable

	sendCh   chan *sendReq
	cancelCh chan *sendReq
	rxq      chan Delivery
	stopped  chan struct{}

	noiseDrops uint64
	overruns   uint64
}

// New creates an engine for the node id over the given transceiver.
func New(id frame.NodeID, rt radio.Transceiver, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		id:       id,
		rt:       rt,
		cfg:      cfg,
		codec:    NewCodec(),
		sessions: newSessionTable(cfg.SessionCapacity),
		sendCh:   make(chan *sendReq),
		cancelCh: make(chan *sendReq, 16),
		rxq:      make(chan Delivery, cfg.QueueDepth),
		stopped:  make(chan struct{}),
	}
}

// ID returns the local node id.
func (e *Engine) ID() frame.NodeID { return e.id }

// Run drives the engine until the context is cancelled or the transceiver
// fails. Fatal radio errors are returned unchanged.
func (e *Engine) Run(ctx context.Context) error {
	glog.Infof("link: node %04x up (retries=%d timeout=%v backoff=x%.1f)",
		uint16(e.id), e.cfg.MaxRetries, e.cfg.BaseTimeout, e.cfg.BackoffMultiplier)
	defer e.shutdown()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.processControl(ctx)
		e.processTimeouts(ctx, time.Now())

		window := e.cfg.ReceiveWindow
		if deadline, ok := e.nextDeadline(); ok {
			if until := time.Until(deadline); until < window {
				if until <= 0 {
					continue
				}
				window = until
			}
		}
		symbols, err := e.rt.Receive(ctx, window)
		switch {
		case err == nil:
			e.handleInbound(ctx, symbols)
		case radio.IsTimeout(err):
			// idle air
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			glog.Errorf("link: node %04x radio failure: %v", uint16(e.id), err)
			return err
		}
	}
}

// Send delivers payload to peer reliably, blocking until the peer
// acknowledged, retries ran out, or ctx is cancelled. Cancellation returns
// the session to idle and disarms its retransmission timer. Sends to
// frame.Broadcast transmit once and return immediately after airtime.
func (e *Engine) Send(ctx context.Context, peer frame.NodeID, payload []byte) error {
	if len(payload) > frame.MaxPayload {
		return frame.ErrPayloadTooLarge
	}
	req := &sendReq{
		peer:    peer,
		payload: append([]byte{}, payload...),
		done:    make(chan error, 1),
	}
	select {
	case e.sendCh <- req:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		select {
		case e.cancelCh <- req:
		case <-req.done:
		case <-e.stopped:
		}
		return ctx.Err()
	}
}

// Broadcast transmits payload to every node in range, unacknowledged.
func (e *Engine) Broadcast(ctx context.Context, payload []byte) error {
	return e.Send(ctx, frame.Broadcast, payload)
}

// Received exposes the inbound delivery queue.
func (e *Engine) Received() <-chan Delivery { return e.rxq }

// PollReceived pops one pending delivery without blocking.
func (e *Engine) PollReceived() (frame.NodeID, []byte, bool) {
	select {
	case d := <-e.rxq:
		return d.Peer, d.Payload, true
	default:
		return 0, nil, false
	}
}

// Stats returns the counters for peer, zero-valued if no session exists.
func (e *Engine) Stats(peer frame.NodeID) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s := e.sessions.byPeer[peer]; s != nil {
		return s.stats
	}
	return Stats{}
}

// Sessions returns diagnostic snapshots, most recently used first.
func (e *Engine) Sessions() []SessionSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	all := e.sessions.all()
	out := make([]SessionSnapshot, len(all))
	for i, s := range all {
		out[i] = s.snapshot()
	}
	return out
}

// NoiseDrops counts inbound buffers discarded as undecodable noise.
func (e *Engine) NoiseDrops() uint64 { return atomic.LoadUint64(&e.noiseDrops) }

// Overruns counts deliveries lost to a full application queue.
func (e *Engine) Overruns() uint64 { return atomic.LoadUint64(&e.overruns) }

// engine goroutine below

func (e *Engine) processControl(ctx context.Context) {
	for {
		select {
		case req := <-e.sendCh:
			e.accept(ctx, req)
		case req := <-e.cancelCh:
			e.cancel(ctx, req)
		default:
			return
		}
	}
}

func (e *Engine) accept(ctx context.Context, req *sendReq) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if req.peer == frame.Broadcast {
		e.startBroadcast(ctx, req)
		return
	}
	s, evicted := e.sessions.getOrCreate(req.peer)
	if evicted != nil {
		e.failSession(evicted, ErrSessionEvicted)
	}
	// Earlier requests keep their place in line even when the session is
	// momentarily idle between them.
	if s.state != stateIdle || s.waiter != nil || len(s.queue) > 0 {
		s.queue = append(s.queue, req)
		return
	}
	e.startSend(ctx, s, req)
}

func (e *Engine) startBroadcast(ctx context.Context, req *sendReq) {
	s, evicted := e.sessions.getOrCreate(frame.Broadcast)
	if evicted != nil {
		e.failSession(evicted, ErrSessionEvicted)
	}
	seq := s.lastSentSeq + 1
	pkt := &frame.Packet{Sender: e.id, Receiver: frame.Broadcast, Seq: seq, Payload: req.payload}
	symbols, err := e.codec.Encode(pkt)
	if err == nil {
		err = e.rt.Transmit(ctx, symbols)
	}
	if err == nil {
		s.lastSentSeq = seq
		glog.V(2).Infof("link: node %04x broadcast seq=%d len=%d", uint16(e.id), seq, len(req.payload))
	}
	req.done <- err
}

func (e *Engine) startSend(ctx context.Context, s *session, req *sendReq) {
	seq := s.lastSentSeq + 1
	pkt := &frame.Packet{Sender: e.id, Receiver: s.peer, Seq: seq, Payload: req.payload}
	symbols, err := e.codec.Encode(pkt)
	if err == nil {
		err = e.rt.Transmit(ctx, symbols)
	}
	if err != nil {
		req.done <- err
		e.startNext(ctx, s)
		return
	}
	s.lastSentSeq = seq
	s.state = stateAwaitingAck
	s.pendingRetries = 0
	s.backoff = e.cfg.BaseTimeout
	s.deadline = time.Now().Add(s.backoff)
	s.pkt = pkt
	s.symbols = symbols
	s.retrySymbols = nil
	s.waiter = req
	glog.V(2).Infof("link: node %04x -> %04x seq=%d len=%d", uint16(e.id), uint16(s.peer), seq, len(req.payload))
}

func (e *Engine) startNext(ctx context.Context, s *session) {
	if s.state != stateIdle || len(s.queue) == 0 {
		return
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	e.startSend(ctx, s, next)
}

func (e *Engine) cancel(ctx context.Context, req *sendReq) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions.all() {
		if s.waiter == req {
			glog.V(2).Infof("link: node %04x cancel -> %04x seq=%d", uint16(e.id), uint16(s.peer), s.lastSentSeq)
			s.reset()
			req.done <- context.Canceled
			// No retransmission timer survives a cancelled send, and
			// requests queued behind it move up.
			e.startNext(ctx, s)
			return
		}
		for i, queued := range s.queue {
			if queued == req {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				req.done <- context.Canceled
				return
			}
		}
	}
	// Already completed; nothing to do.
}

func (e *Engine) processTimeouts(ctx context.Context, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range e.sessions.all() {
		if s.state != stateAwaitingAck || now.Before(s.deadline) {
			continue
		}
		if s.pendingRetries < e.cfg.MaxRetries-1 {
			e.retransmit(ctx, s, now)
			continue
		}
		glog.Warningf("link: node %04x -> %04x seq=%d gave up after %d attempts",
			uint16(e.id), uint16(s.peer), s.lastSentSeq, e.cfg.MaxRetries)
		waiter := s.waiter
		s.reset()
		waiter.done <- ErrRetriesExhausted
		e.startNext(ctx, s)
	}
}

func (e *Engine) retransmit(ctx context.Context, s *session, now time.Time) {
	if s.retrySymbols == nil {
		retry := *s.pkt
		retry.Flags |= frame.FlagRetry
		symbols, err := e.codec.Encode(&retry)
		if err != nil {
			// Cannot happen for a packet that already encoded once.
			glog.Errorf("link: re-encode failed: %v", err)
			return
		}
		s.retrySymbols = symbols
	}
	s.pendingRetries++
	s.stats.Retries++
	s.backoff = time.Duration(float64(s.backoff) * e.cfg.BackoffMultiplier)
	s.deadline = now.Add(s.backoff)
	if err := e.rt.Transmit(ctx, s.retrySymbols); err != nil {
		glog.Warningf("link: node %04x retransmit failed: %v", uint16(e.id), err)
		return
	}
	glog.V(2).Infof("link: node %04x retry %d -> %04x seq=%d backoff=%v",
		uint16(e.id), s.pendingRetries, uint16(s.peer), s.lastSentSeq, s.backoff)
}

func (e *Engine) nextDeadline() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var deadline time.Time
	found := false
	for _, s := range e.sessions.all() {
		if s.state != stateAwaitingAck {
			continue
		}
		if !found || s.deadline.Before(deadline) {
			deadline, found = s.deadline, true
		}
	}
	return deadline, found
}

func (e *Engine) handleInbound(ctx context.Context, symbols []byte) {
	pkt, corrected, err := e.codec.Decode(symbols)
	if err != nil {
		// Channel noise. The sender's own timeout drives recovery.
		atomic.AddUint64(&e.noiseDrops, 1)
		glog.V(3).Infof("link: node %04x dropped noise (%d symbols): %v", uint16(e.id), len(symbols), err)
		return
	}
	if pkt.Receiver != e.id && pkt.Receiver != frame.Broadcast {
		glog.V(3).Infof("link: node %04x overheard %04x -> %04x", uint16(e.id), uint16(pkt.Sender), uint16(pkt.Receiver))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s, evicted := e.sessions.getOrCreate(pkt.Sender)
	if evicted != nil {
		e.failSession(evicted, ErrSessionEvicted)
	}
	s.stats.CorrectedErrors += uint64(corrected)
	if corrected > 0 {
		glog.V(2).Infof("link: node %04x corrected %d symbols from %04x", uint16(e.id), corrected, uint16(pkt.Sender))
	}

	if pkt.Flags.IsAck() {
		e.handleAck(ctx, s, pkt)
		return
	}
	e.handleData(ctx, s, pkt)
}

func (e *Engine) handleAck(ctx context.Context, s *session, pkt *frame.Packet) {
	if s.state != stateAwaitingAck || pkt.Seq != s.lastSentSeq {
		glog.V(2).Infof("link: node %04x stale ack from %04x seq=%d", uint16(e.id), uint16(s.peer), pkt.Seq)
		return
	}
	s.lastAckedSeq = pkt.Seq
	waiter := s.waiter
	s.reset()
	waiter.done <- nil
	glog.V(2).Infof("link: node %04x acked by %04x seq=%d", uint16(e.id), uint16(s.peer), pkt.Seq)
	e.startNext(ctx, s)
}

func (e *Engine) handleData(ctx context.Context, s *session, pkt *frame.Packet) {
	// A broadcast goes on the air exactly once, never acknowledged and
	// never retried, so its sequence carries no duplicate information.
	// The sender also numbers broadcast and unicast traffic from separate
	// sessions, so broadcast sequences must not touch the unicast rx
	// tracking either.
	if pkt.Receiver == frame.Broadcast {
		e.deliver(pkt)
		return
	}

	duplicate := s.hasRx && pkt.Seq == s.rxSeq

	// Half-duplex turnaround: the acknowledgment goes on the air before
	// any queued outbound work, and a duplicate means our previous ACK
	// was lost, so it is acknowledged again without re-delivery.
	e.sendAck(ctx, pkt)
	if duplicate {
		s.stats.Drops++
		glog.V(2).Infof("link: node %04x duplicate from %04x seq=%d", uint16(e.id), uint16(pkt.Sender), pkt.Seq)
		return
	}
	s.rxSeq, s.hasRx = pkt.Seq, true
	e.deliver(pkt)
}

func (e *Engine) deliver(pkt *frame.Packet) {
	select {
	case e.rxq <- Delivery{Peer: pkt.Sender, Payload: pkt.Payload}:
	default:
		atomic.AddUint64(&e.overruns, 1)
		glog.Warningf("link: node %04x delivery queue full, payload lost", uint16(e.id))
	}
}

func (e *Engine) sendAck(ctx context.Context, pkt *frame.Packet) {
	ack := &frame.Packet{Sender: e.id, Receiver: pkt.Sender, Seq: pkt.Seq, Flags: frame.FlagAck}
	symbols, err := e.codec.Encode(ack)
	if err == nil {
		err = e.rt.Transmit(ctx, symbols)
	}
	if err != nil {
		glog.Warningf("link: node %04x ack to %04x failed: %v", uint16(e.id), uint16(pkt.Sender), err)
		return
	}
	glog.V(2).Infof("link: node %04x ack -> %04x seq=%d", uint16(e.id), uint16(pkt.Sender), pkt.Seq)
}

func (e *Engine) failSession(s *session, err error) {
	if s.waiter != nil {
		s.waiter.done <- err
	}
	for _, queued := range s.queue {
		queued.done <- err
	}
	s.queue = nil
	s.reset()
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	for _, s := range e.sessions.all() {
		e.failSession(s, ErrStopped)
	}
	e.mu.Unlock()
	close(e.stopped)
	glog.Infof("link: node %04x down", uint16(e.id))
}
