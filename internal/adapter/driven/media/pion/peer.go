package pion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultGatherTimeout bounds ICE candidate gathering before the
// description is handed out.
const DefaultGatherTimeout = 15 * time.Second

var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type Config struct {
	ICEServers    []string
	GatherTimeout time.Duration
}

// codecRegistrar puts the codecs the local devices can produce into the
// media engine.
type codecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// sendable is a local track that can be put on a peer connection.
type sendable interface {
	port.LocalTrack
	local() webrtc.TrackLocal
	attach(sender *webrtc.RTPSender)
	detach(sender *webrtc.RTPSender)
}

type PeerFactory struct {
	api *webrtc.API
	cfg Config
}

func NewPeerFactory(cfg Config, codecs codecRegistrar) (*PeerFactory, error) {
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = DefaultSTUNServers
	}
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultGatherTimeout
	}

	m := &webrtc.MediaEngine{}
	if err := codecs.RegisterCodecs(m); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
	)
	return &PeerFactory{api: api, cfg: cfg}, nil
}

func (f *PeerFactory) NewCaller(ctx context.Context, local port.LocalStream, h port.PeerHandlers) (port.PeerSession, domain.Signal, error) {
	s, err := f.open(local, h)
	if err != nil {
		return nil, domain.Signal{}, err
	}
	s.addRecvOnly()

	offer, err := s.pc.CreateOffer(nil)
	if err != nil {
		s.Destroy()
		return nil, domain.Signal{}, fmt.Errorf("create offer: %w", err)
	}
	sig, err := s.describe(ctx, offer, f.cfg.GatherTimeout)
	if err != nil {
		s.Destroy()
		return nil, domain.Signal{}, err
	}
	return s, sig, nil
}

func (f *PeerFactory) NewReceiver(ctx context.Context, offer domain.Signal, local port.LocalStream, h port.PeerHandlers) (port.PeerSession, domain.Signal, error) {
	if err := offer.Validate(domain.SignalOffer); err != nil {
		return nil, domain.Signal{}, fmt.Errorf("%w: %v", domain.ErrMalformedSignal, err)
	}
	s, err := f.open(local, h)
	if err != nil {
		return nil, domain.Signal{}, err
	}
	if err := s.setRemote(webrtc.SDPTypeOffer, offer.SDP); err != nil {
		s.Destroy()
		return nil, domain.Signal{}, err
	}

	answer, err := s.pc.CreateAnswer(nil)
	if err != nil {
		s.Destroy()
		return nil, domain.Signal{}, fmt.Errorf("create answer: %w", err)
	}
	sig, err := s.describe(ctx, answer, f.cfg.GatherTimeout)
	if err != nil {
		s.Destroy()
		return nil, domain.Signal{}, err
	}
	return s, sig, nil
}

func (f *PeerFactory) open(local port.LocalStream, h port.PeerHandlers) (*Session, error) {
	servers := make([]webrtc.ICEServer, 0, len(f.cfg.ICEServers))
	for _, u := range f.cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	s := &Session{
		pc:       pc,
		handlers: h,
		remote:   &remoteStream{},
		senders:  make(map[*webrtc.RTPSender]sendable),
	}
	s.expected.Store(-1)

	pc.OnTrack(s.onTrack)
	pc.OnConnectionStateChange(s.onStateChange)

	if local != nil {
		for _, t := range local.Tracks() {
			st, ok := t.(sendable)
			if !ok {
				log.Warn().Str("track_id", t.ID()).Msg("Local track cannot be sent, skipping")
				continue
			}
			sender, err := pc.AddTrack(st.local())
			if err != nil {
				s.Destroy()
				return nil, fmt.Errorf("add %s track: %w", st.Kind(), err)
			}
			st.attach(sender)
			s.senders[sender] = st
			if !st.Enabled() {
				if err := sender.ReplaceTrack(nil); err != nil {
					log.Warn().Err(err).Msg("Failed to mute new sender")
				}
			}
		}
	}
	return s, nil
}

// Session is one RTCPeerConnection to the remote user.
type Session struct {
	pc       *webrtc.PeerConnection
	handlers port.PeerHandlers
	remote   *remoteStream

	// expected is the number of tracks the remote side sends, -1 until the
	// remote description is known.
	expected   atomic.Int32
	streamOnce sync.Once
	closeOnce  sync.Once

	mu        sync.Mutex
	senders   map[*webrtc.RTPSender]sendable
	destroyed bool
}

func (s *Session) addRecvOnly() {
	have := map[webrtc.RTPCodecType]bool{}
	for _, t := range s.pc.GetTransceivers() {
		have[t.Kind()] = true
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if have[kind] {
			continue
		}
		if _, err := s.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			log.Warn().Err(err).Str("kind", kind.String()).Msg("Failed to add receive-only transceiver")
		}
	}
}

// describe sets desc as the local description and waits for ICE gathering
// so the returned signal carries every candidate.
func (s *Session) describe(ctx context.Context, desc webrtc.SessionDescription, timeout time.Duration) (domain.Signal, error) {
	gathered := webrtc.GatheringCompletePromise(s.pc)
	if err := s.pc.SetLocalDescription(desc); err != nil {
		return domain.Signal{}, fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-gathered:
	case <-timer.C:
		log.Warn().Dur("timeout", timeout).Msg("ICE gathering incomplete, sending what we have")
	case <-ctx.Done():
		return domain.Signal{}, ctx.Err()
	}

	ld := s.pc.LocalDescription()
	if ld == nil {
		return domain.Signal{}, errors.New("no local description")
	}
	t := domain.SignalOffer
	if ld.Type == webrtc.SDPTypeAnswer {
		t = domain.SignalAnswer
	}
	return domain.NewSignal(t, ld.SDP), nil
}

func (s *Session) setRemote(t webrtc.SDPType, sdp string) error {
	n, err := sendingSections(sdp)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedSignal, err)
	}
	if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.expected.Store(int32(n))
	s.checkComplete()
	return nil
}

func (s *Session) ApplyAnswer(answer domain.Signal) error {
	if err := answer.Validate(domain.SignalAnswer); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedSignal, err)
	}
	if s.isDestroyed() {
		log.Warn().Msg("Answer for closed peer connection, ignoring")
		return nil
	}
	return s.setRemote(webrtc.SDPTypeAnswer, answer.SDP)
}

func (s *Session) RemoteStream() port.RemoteStream {
	if s.isDestroyed() {
		return nil
	}
	return s.remote
}

// Destroy stops the local tracks, closes the connection and forgets the
// handlers.
func (s *Session) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	senders := s.senders
	s.senders = nil
	s.mu.Unlock()

	s.closeOnce.Do(func() {})
	s.streamOnce.Do(func() {})

	for sender, t := range senders {
		t.detach(sender)
		t.Stop()
	}
	if err := s.pc.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close peer connection")
	}
}

func (s *Session) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Session) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	log.Debug().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("Received remote track")

	kind := domain.TrackAudio
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		kind = domain.TrackVideo
		// Ask for a keyframe so the first frames decode.
		if err := s.pc.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())},
		}); err != nil {
			log.Debug().Err(err).Msg("Failed to send PLI")
		}
	}
	s.remote.add(domain.TrackInfo{
		ID:       track.ID(),
		StreamID: track.StreamID(),
		Kind:     kind,
		Enabled:  true,
	})

	go drain(track)
	s.checkComplete()
}

func (s *Session) checkComplete() {
	want := int(s.expected.Load())
	if want < 0 || s.remote.len() < want || s.remote.len() == 0 {
		return
	}
	s.streamOnce.Do(func() {
		log.Info().Int("tracks", want).Msg("Remote stream complete")
		if s.handlers.OnRemoteStream != nil {
			s.handlers.OnRemoteStream(s.remote)
		}
	})
}

func (s *Session) onStateChange(state webrtc.PeerConnectionState) {
	log.Debug().Str("state", state.String()).Msg("Peer connection state changed")

	var err error
	switch state {
	case webrtc.PeerConnectionStateFailed:
		err = errors.New("ice connection failed")
	case webrtc.PeerConnectionStateClosed:
		err = io.EOF
	default:
		return
	}
	s.closeOnce.Do(func() {
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(err)
		}
	})
}

// drain reads the remote track until the connection goes away. Nothing in
// the daemon renders media, but reading keeps the interceptors fed.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

type remoteStream struct {
	mu     sync.Mutex
	tracks []domain.TrackInfo
}

func (r *remoteStream) add(t domain.TrackInfo) {
	r.mu.Lock()
	r.tracks = append(r.tracks, t)
	r.mu.Unlock()
}

func (r *remoteStream) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracks)
}

func (r *remoteStream) Tracks() []domain.TrackInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TrackInfo(nil), r.tracks...)
}
