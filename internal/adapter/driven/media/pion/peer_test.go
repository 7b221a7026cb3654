package pion

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"github.com/Wyydra/ya-client/internal/core/port"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type defaultCodecs struct{}

func (defaultCodecs) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func newTestFactory(t *testing.T) *PeerFactory {
	t.Helper()
	f, err := NewPeerFactory(Config{GatherTimeout: 2 * time.Second}, defaultCodecs{})
	require.NoError(t, err)
	return f
}

func TestNegotiateWithoutLocalMedia(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	f := newTestFactory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	caller, offer, err := f.NewCaller(ctx, nil, port.PeerHandlers{})
	require.NoError(t, err)
	defer caller.Destroy()
	assert.Equal(t, domain.SignalOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=video")

	receiver, answer, err := f.NewReceiver(ctx, offer, nil, port.PeerHandlers{})
	require.NoError(t, err)
	defer receiver.Destroy()
	assert.Equal(t, domain.SignalAnswer, answer.Type)

	require.NoError(t, caller.ApplyAnswer(answer))
}

func TestReceiverRejectsAnswerAsOffer(t *testing.T) {
	f := newTestFactory(t)

	_, _, err := f.NewReceiver(context.Background(), domain.NewSignal(domain.SignalAnswer, "v=0"), nil, port.PeerHandlers{})
	assert.ErrorIs(t, err, domain.ErrMalformedSignal)
}

func TestDestroyIsIdempotentAndSilent(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	f := newTestFactory(t)

	var closed atomic.Int32
	sess, _, err := f.NewCaller(context.Background(), nil, port.PeerHandlers{
		OnClose: func(error) { closed.Add(1) },
	})
	require.NoError(t, err)

	sess.Destroy()
	sess.Destroy()

	assert.Nil(t, sess.RemoteStream())
	assert.NoError(t, sess.ApplyAnswer(domain.NewSignal(domain.SignalAnswer, "v=0")))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, closed.Load())
}

var sampleSeq atomic.Int32

func sampleTrack(t *testing.T, mime string) *Track {
	t.Helper()
	n := sampleSeq.Add(1)
	tr, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, fmt.Sprintf("track-%d", n), fmt.Sprintf("stream-%d", n))
	require.NoError(t, err)
	return newTrack(tr, nil)
}

// pump writes a sample to every track of streams every 20ms until ctx ends,
// so the far side sees RTP and fires OnTrack.
func pump(ctx context.Context, streams ...*Stream) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	sample := media.Sample{Data: []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, Duration: 20 * time.Millisecond}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range streams {
				for _, tr := range s.tracks {
					if st, ok := tr.track.(*webrtc.TrackLocalStaticSample); ok {
						_ = st.WriteSample(sample)
					}
				}
			}
		}
	}
}

func TestLoopbackDeliversRemoteStreamOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	f := newTestFactory(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	callerLocal := newStream(sampleTrack(t, webrtc.MimeTypeVP8), sampleTrack(t, webrtc.MimeTypeOpus))
	receiverLocal := newStream(sampleTrack(t, webrtc.MimeTypeVP8), sampleTrack(t, webrtc.MimeTypeOpus))
	go pump(ctx, callerLocal, receiverLocal)

	callerStreams := make(chan port.RemoteStream, 4)
	receiverStreams := make(chan port.RemoteStream, 4)

	caller, offer, err := f.NewCaller(ctx, callerLocal, port.PeerHandlers{
		OnRemoteStream: func(rs port.RemoteStream) { callerStreams <- rs },
	})
	require.NoError(t, err)
	defer caller.Destroy()

	receiver, answer, err := f.NewReceiver(ctx, offer, receiverLocal, port.PeerHandlers{
		OnRemoteStream: func(rs port.RemoteStream) { receiverStreams <- rs },
	})
	require.NoError(t, err)
	defer receiver.Destroy()

	require.NoError(t, caller.ApplyAnswer(answer))

	for name, ch := range map[string]chan port.RemoteStream{"caller": callerStreams, "receiver": receiverStreams} {
		select {
		case rs := <-ch:
			kinds := map[domain.TrackKind]int{}
			for _, tr := range rs.Tracks() {
				kinds[tr.Kind]++
			}
			assert.Equal(t, map[domain.TrackKind]int{domain.TrackVideo: 1, domain.TrackAudio: 1}, kinds, name)
		case <-time.After(15 * time.Second):
			t.Fatalf("%s never saw the remote stream", name)
		}
	}

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, callerStreams, "caller stream callback fired twice")
	assert.Empty(t, receiverStreams, "receiver stream callback fired twice")

	caller.Destroy()
	receiver.Destroy()
	for _, tr := range append(callerLocal.tracks, receiverLocal.tracks...) {
		assert.True(t, tr.Stopped(), tr.ID())
	}
}

func TestMuteSwapsSenderTrack(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	f := newTestFactory(t)

	video := sampleTrack(t, webrtc.MimeTypeVP8)
	sess, _, err := f.NewCaller(context.Background(), newStream(video), port.PeerHandlers{})
	require.NoError(t, err)
	defer sess.Destroy()

	s := sess.(*Session)
	var sender *webrtc.RTPSender
	s.mu.Lock()
	for snd := range s.senders {
		sender = snd
	}
	s.mu.Unlock()
	require.NotNil(t, sender)
	assert.Equal(t, video.local(), sender.Track())

	video.SetEnabled(false)
	assert.False(t, video.Enabled())
	assert.Nil(t, sender.Track())

	video.SetEnabled(true)
	assert.Equal(t, video.local(), sender.Track())

	sess.Destroy()
	assert.True(t, video.Stopped())
	video.SetEnabled(false)
	assert.True(t, video.Enabled(), "stopped tracks ignore toggles")
}

func TestMutedTrackJoinsWithoutSending(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real peer connections")
	}
	f := newTestFactory(t)

	audio := sampleTrack(t, webrtc.MimeTypeOpus)
	audio.SetEnabled(false)
	sess, offer, err := f.NewCaller(context.Background(), newStream(audio), port.PeerHandlers{})
	require.NoError(t, err)
	defer sess.Destroy()

	assert.Contains(t, offer.SDP, "m=audio")
	s := sess.(*Session)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.senders, 1)
	for snd := range s.senders {
		assert.Nil(t, snd.Track())
	}
}
