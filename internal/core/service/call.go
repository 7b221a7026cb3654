package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrStopped     = errors.New("call service stopped")
	ErrInvalidPeer = errors.New("invalid peer")
)

const (
	DefaultSendTimeout = 2 * time.Second
	slowSend           = 250 * time.Millisecond
)

type CallConfig struct {
	Constraints domain.MediaConstraints
	// RingTimeout ends an unanswered call. Zero waits forever.
	RingTimeout time.Duration
	// SendTimeout bounds one signaling write. Sends run on the loop, so a
	// stalled socket holds every other input for at most this long.
	SendTimeout time.Duration
}

// CallService is the call state machine. Every input, whether a user action,
// a signaling event or the completion of async work, runs on the loop
// goroutine started by Run, one at a time.
type CallService struct {
	media  *MediaService
	peers  port.PeerFactory
	bridge *SignalingBridge
	cfg    CallConfig

	tasks    chan func()
	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}

	// Owned by the loop goroutine.
	call       domain.Call
	callCtx    context.Context
	cancelCall context.CancelFunc
	session    port.PeerSession
	remote     port.RemoteStream
	ringTimer  *time.Timer
	videoOn    bool
	audioOn    bool
	lastReason domain.EndReason
	lastErr    error

	snapMu sync.RWMutex
	snap   domain.CallUpdate

	listenerMu sync.RWMutex
	listeners  map[chan domain.CallUpdate]struct{}
}

func NewCallService(media *MediaService, peers port.PeerFactory, bridge *SignalingBridge, cfg CallConfig) *CallService {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	s := &CallService{
		media:     media,
		peers:     peers,
		bridge:    bridge,
		cfg:       cfg,
		tasks:     make(chan func(), 64),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		videoOn:   true,
		audioOn:   true,
		listeners: make(map[chan domain.CallUpdate]struct{}),
	}
	s.snap = s.buildUpdate()
	bridge.Bind(s.Dispatch)
	return s
}

// Run processes events until ctx is done or Stop is called. A live call is
// hung up on the way out.
func (s *CallService) Run(ctx context.Context) {
	defer close(s.done)
	defer s.bridge.Unbind()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-s.quit:
			s.shutdown()
			return
		case task := <-s.tasks:
			task()
		}
	}
}

func (s *CallService) Stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

// Done is closed once Run has returned.
func (s *CallService) Done() <-chan struct{} {
	return s.done
}

func (s *CallService) shutdown() {
	if s.call.Active() {
		log.Info().Str("call_id", s.call.ID.String()).Msg("Hanging up on shutdown")
		if err := s.apply(domain.End{}); err != nil {
			log.Warn().Err(err).Msg("Hangup on shutdown incomplete")
		}
	}
	s.listenerMu.Lock()
	for ch := range s.listeners {
		delete(s.listeners, ch)
		close(ch)
	}
	s.listenerMu.Unlock()
}

// post queues fn on the loop. It reports false once the loop has exited.
func (s *CallService) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.tasks <- fn:
		return true
	case <-s.done:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (s *CallService) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	if !s.post(func() { reply <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Dispatch feeds an event into the machine without waiting. Refused events
// are logged and dropped.
func (s *CallService) Dispatch(ev domain.Event) {
	s.post(func() {
		if err := s.apply(ev); err != nil {
			logRefusal(ev, err)
		}
	})
}

func (s *CallService) StartCall(ctx context.Context, peer domain.UserID, peerName string) error {
	if peer == "" {
		return fmt.Errorf("%w: peer id is required", ErrInvalidPeer)
	}
	if peer == s.bridge.Self() {
		return fmt.Errorf("%w: cannot call yourself", ErrInvalidPeer)
	}
	return s.do(ctx, func() error {
		return s.apply(domain.StartCall{ID: domain.NewCallID(), Peer: peer, PeerName: peerName})
	})
}

func (s *CallService) AcceptCall(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.apply(domain.Accept{})
	})
}

func (s *CallService) RejectCall(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.apply(domain.Reject{})
	})
}

// EndCall hangs up. Local state is cleared even when the peer could not be
// told; the delivery error is still returned.
func (s *CallService) EndCall(ctx context.Context) error {
	return s.do(ctx, func() error {
		err := s.apply(domain.End{})
		if errors.Is(err, domain.ErrStaleEvent) {
			return nil
		}
		return err
	})
}

// ToggleVideo flips the local video track and returns whether it is now
// enabled. Without a local video track it returns false and changes nothing.
func (s *CallService) ToggleVideo(ctx context.Context) (bool, error) {
	return s.toggle(ctx, domain.TrackVideo)
}

func (s *CallService) ToggleAudio(ctx context.Context) (bool, error) {
	return s.toggle(ctx, domain.TrackAudio)
}

func (s *CallService) toggle(ctx context.Context, kind domain.TrackKind) (bool, error) {
	var enabled bool
	err := s.do(ctx, func() error {
		if !s.media.Has(kind) {
			return nil
		}
		if kind == domain.TrackVideo {
			enabled = s.media.ToggleVideo()
			s.videoOn = enabled
		} else {
			enabled = s.media.ToggleAudio()
			s.audioOn = enabled
		}
		log.Debug().Str("kind", string(kind)).Bool("enabled", enabled).Msg("Local track toggled")
		s.publish()
		return nil
	})
	return enabled, err
}

func (s *CallService) Snapshot() domain.CallUpdate {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// RemoteStream hands the remote media to whoever renders it. The service
// keeps its own reference for teardown.
func (s *CallService) RemoteStream(ctx context.Context) (port.RemoteStream, error) {
	var rs port.RemoteStream
	err := s.do(ctx, func() error {
		rs = s.remote
		return nil
	})
	return rs, err
}

// Subscribe returns a channel of updates. Slow subscribers miss updates
// rather than stall the loop.
func (s *CallService) Subscribe() (ch chan domain.CallUpdate, cancel func()) {
	ch = make(chan domain.CallUpdate, 32)

	s.listenerMu.Lock()
	s.listeners[ch] = struct{}{}
	s.listenerMu.Unlock()

	cancel = func() {
		s.listenerMu.Lock()
		if _, ok := s.listeners[ch]; ok {
			delete(s.listeners, ch)
			close(ch)
		}
		s.listenerMu.Unlock()
	}
	return ch, cancel
}

// apply runs one event through the transition function and carries out the
// effects. It must only be called on the loop goroutine.
func (s *CallService) apply(ev domain.Event) error {
	prev := s.call
	next, effects, refused := domain.Transition(s.call, ev)
	s.call = next

	if refused == nil && !prev.Active() && next.Active() {
		s.lastReason = ""
		s.lastErr = nil
	}
	if prev.State != next.State {
		log.Info().
			Str("call_id", next.ID.String()).
			Str("peer_id", next.PeerUserID.String()).
			Stringer("from", prev.State).
			Stringer("to", next.State).
			Msg("Call state changed")
	}

	var errs []error
	for _, eff := range effects {
		if err := s.execute(eff); err != nil {
			errs = append(errs, err)
		}
	}

	if next.State == domain.StateEnded {
		if err := s.apply(domain.TeardownDone{Call: next.ID}); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	s.publish()
	if refused != nil {
		return refused
	}
	return errors.Join(errs...)
}

func (s *CallService) execute(eff domain.Effect) error {
	switch e := eff.(type) {
	case domain.OpenSession:
		s.openSession(e.Role, e.RemoteOffer)
	case domain.ApplyAnswer:
		s.applyAnswer(e.Signal)
	case domain.Emit:
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SendTimeout)
		defer cancel()
		start := time.Now()
		err := s.bridge.Send(ctx, e.Message)
		if elapsed := time.Since(start); elapsed > slowSend {
			log.Warn().Str("event", e.Message.Event).Dur("elapsed", elapsed).Msg("Slow signaling send")
		}
		if err != nil {
			log.Error().Err(err).Str("event", e.Message.Event).Msg("Failed to send signal")
			switch e.Message.Event {
			case domain.EventInitiate, domain.EventAnswer:
				id := s.call.ID
				go s.Dispatch(domain.DeliveryFailed{Call: id, Err: err})
			}
			return err
		}
	case domain.ArmRingTimer:
		s.armRingTimer()
	case domain.DisarmRingTimer:
		s.disarmRingTimer()
	case domain.Teardown:
		s.teardown(e.Reason)
	case domain.Notify:
		s.lastErr = e.Err
		log.Error().Err(e.Err).Str("call_id", s.call.ID.String()).Msg("Call failed")
	default:
		return fmt.Errorf("unknown effect %T", eff)
	}
	return nil
}

func (s *CallService) openSession(role domain.Role, offer *domain.Signal) {
	if s.cancelCall == nil {
		s.callCtx, s.cancelCall = context.WithCancel(context.Background())
	}
	ctx := s.callCtx
	id := s.call.ID
	go s.negotiate(ctx, id, role, offer)
}

// negotiate opens media and the peer session off the loop. Whatever it
// produces for a call that is gone by then is released here.
func (s *CallService) negotiate(ctx context.Context, id domain.CallID, role domain.Role, offer *domain.Signal) {
	l := log.With().Str("call_id", id.String()).Stringer("role", role).Logger()

	stream, err := s.media.Acquire(ctx, s.cfg.Constraints)
	if err != nil {
		if ctx.Err() == nil {
			s.Dispatch(domain.MediaFailed{Call: id, Err: err})
		}
		return
	}

	handlers := port.PeerHandlers{
		OnRemoteStream: func(rs port.RemoteStream) {
			s.post(func() { s.attachRemote(id, rs) })
		},
		OnClose: func(err error) {
			s.Dispatch(domain.PeerClosed{Call: id, Err: err})
		},
	}

	var (
		sess  port.PeerSession
		local domain.Signal
	)
	if role == domain.RoleCaller {
		sess, local, err = s.peers.NewCaller(ctx, stream, handlers)
	} else {
		sess, local, err = s.peers.NewReceiver(ctx, *offer, stream, handlers)
	}
	if err != nil {
		if ctx.Err() == nil {
			l.Error().Err(err).Msg("Peer negotiation failed")
			s.Dispatch(domain.NegotiationFailed{Call: id, Err: fmt.Errorf("%w: %v", domain.ErrPeerNegotiation, err)})
		}
		return
	}
	l.Debug().Str("type", string(local.Type)).Msg("Local description ready")

	ok := s.post(func() {
		if ctx.Err() != nil || !s.call.Active() || s.call.ID != id {
			l.Debug().Msg("Dropping session of finished call")
			sess.Destroy()
			return
		}
		s.session = sess
		if err := s.apply(domain.SessionReady{Call: id, Signal: local}); err != nil {
			logRefusal(domain.SessionReady{Call: id}, err)
		}
	})
	if !ok {
		sess.Destroy()
	}
}

func (s *CallService) applyAnswer(answer domain.Signal) {
	if s.session == nil {
		log.Warn().Str("call_id", s.call.ID.String()).Msg("No peer session for answer, ignoring")
		return
	}
	if err := s.session.ApplyAnswer(answer); err != nil {
		id := s.call.ID
		log.Error().Err(err).Str("call_id", id.String()).Msg("Failed to apply remote answer")
		go s.Dispatch(domain.PeerClosed{Call: id, Err: fmt.Errorf("%w: %v", domain.ErrPeerNegotiation, err)})
	}
}

func (s *CallService) attachRemote(id domain.CallID, rs port.RemoteStream) {
	if !s.call.Active() || s.call.ID != id {
		return
	}
	s.remote = rs
	log.Info().Str("call_id", id.String()).Int("tracks", len(rs.Tracks())).Msg("Remote stream available")
	s.publish()
}

func (s *CallService) armRingTimer() {
	s.disarmRingTimer()
	if s.cfg.RingTimeout <= 0 {
		return
	}
	id := s.call.ID
	s.ringTimer = time.AfterFunc(s.cfg.RingTimeout, func() {
		s.Dispatch(domain.RingTimeout{Call: id})
	})
}

func (s *CallService) disarmRingTimer() {
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

// teardown releases everything the call holds. Calling it twice leaves the
// same state as calling it once.
func (s *CallService) teardown(reason domain.EndReason) {
	if s.cancelCall != nil {
		s.cancelCall()
		s.cancelCall = nil
		s.callCtx = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
	s.remote = nil
	s.media.Release()
	s.videoOn = true
	s.audioOn = true
	s.lastReason = reason
	log.Info().Str("call_id", s.call.ID.String()).Str("reason", string(reason)).Msg("Call torn down")
}

// holdsResources reports whether anything call-scoped is still open.
func (s *CallService) holdsResources() bool {
	return s.session != nil || s.remote != nil || s.cancelCall != nil || s.media.Active()
}

func (s *CallService) buildUpdate() domain.CallUpdate {
	u := domain.CallUpdate{
		State:           s.call.State,
		PeerUserID:      s.call.PeerUserID,
		PeerDisplayName: s.call.PeerDisplayName,
		IsIncoming:      s.call.IsIncoming,
		VideoEnabled:    s.videoOn,
		AudioEnabled:    s.audioOn,
		Reason:          s.lastReason,
	}
	if s.call.Active() {
		u.CallID = s.call.ID.String()
		u.LocalTracks = s.media.Tracks()
		if s.remote != nil {
			u.RemoteTracks = s.remote.Tracks()
		}
	}
	if s.lastErr != nil {
		u.Error = s.lastErr.Error()
	}
	return u
}

func (s *CallService) publish() {
	u := s.buildUpdate()

	s.snapMu.Lock()
	s.snap = u
	s.snapMu.Unlock()

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	for ch := range s.listeners {
		select {
		case ch <- u:
		default:
			log.Warn().Msg("Update listener full, dropping update")
		}
	}
}

func logRefusal(ev domain.Event, err error) {
	var e *zerolog.Event
	switch {
	case errors.Is(err, domain.ErrStaleEvent):
		e = log.Debug()
	case errors.Is(err, domain.ErrCallInProgress), errors.Is(err, domain.ErrNoPendingCall):
		e = log.Info()
	default:
		e = log.Warn()
	}
	e.Err(err).Str("event", fmt.Sprintf("%T", ev)).Msg("Event dropped")
}
