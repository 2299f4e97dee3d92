// Package video connects to a remote device over WebRTC and exposes its
// camera as a camera.FrameSource and its microphone as an audioio.Source.
//
// Signalling follows the GStreamer webrtcsink protocol: welcome, list,
// startSession, then peer messages carrying SDP and ICE.
package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-attend/pkg/camera"
)

// Sentinel errors for the video package.
var (
	ErrSignalling = errors.New("video: signalling failed")
	ErrNoProducer = errors.New("video: producer not found")
	ErrNoVideo    = errors.New("video: no video track")
	ErrDecode     = errors.New("video: decode failed")
	ErrClosed     = errors.New("video: client closed")
)

// Config holds Client settings.
type Config struct {
	SignallingURL string
	// PeerName is matched against the producer's meta "name".
	PeerName string

	ConnectTimeout time.Duration
	// DecodeInterval rate-limits picture decoding.
	DecodeInterval time.Duration
	// AudioRate is the sample rate delivered by Audio().
	AudioRate int

	Decoder FrameDecoder
	Logger  *slog.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// WithPeerName sets the producer name to connect to.
func WithPeerName(name string) Option {
	return func(c *Config) { c.PeerName = name }
}

// WithConnectTimeout bounds Connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectTimeout = d }
}

// WithDecodeInterval sets the minimum time between decodes.
func WithDecodeInterval(d time.Duration) Option {
	return func(c *Config) { c.DecodeInterval = d }
}

// WithAudioRate sets the microphone output rate.
func WithAudioRate(rate int) Option {
	return func(c *Config) { c.AudioRate = rate }
}

// WithDecoder replaces the ffmpeg decoder.
func WithDecoder(d FrameDecoder) Option {
	return func(c *Config) { c.Decoder = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PeerName:       "attend-device",
		ConnectTimeout: 15 * time.Second,
		DecodeInterval: 100 * time.Millisecond,
		AudioRate:      16000,
		Logger:         slog.Default(),
	}
}

// Client is a receive-only WebRTC session with a remote device.
type Client struct {
	cfg    *Config
	logger *slog.Logger
	audio  *AudioSource

	sig *signaller
	pc  *webrtc.PeerConnection

	sessionMu sync.Mutex
	sessionID string
	// Candidates gathered before the session id is known.
	pendingICE []webrtc.ICECandidateInit

	frameMu    sync.RWMutex
	frame      []byte
	frameReady chan struct{} // closed and replaced on each new frame
	videoUp    chan struct{}
	videoOnce  sync.Once

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

var _ camera.FrameSource = (*Client)(nil)

// NewClient creates a client for the signalling server at url.
func NewClient(url string, opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.SignallingURL = url
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Decoder == nil {
		cfg.Decoder = NewFFmpegDecoder()
	}
	logger := cfg.Logger.With("component", "video.client")
	return &Client{
		cfg:        cfg,
		logger:     logger,
		audio:      newAudioSource(cfg.AudioRate, cfg.Logger),
		frameReady: make(chan struct{}),
		videoUp:    make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

// Audio returns the microphone source. It produces audio once connected.
func (c *Client) Audio() *AudioSource { return c.audio }

// Connect performs signalling and waits for the video track.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	step := c.cfg.ConnectTimeout / 3
	c.logger.Info("connecting", "url", c.cfg.SignallingURL, "peer", c.cfg.PeerName)

	sig, err := dialSignaller(ctx, c.cfg.SignallingURL, step)
	if err != nil {
		return err
	}
	c.sig = sig

	peerID, err := sig.welcome(step)
	if err != nil {
		c.Close()
		return fmt.Errorf("welcome: %w", err)
	}
	producerID, err := sig.findProducer(c.cfg.PeerName, step)
	if err != nil {
		c.Close()
		return err
	}
	c.logger.Debug("signalling ready", "peer_id", peerID, "producer", producerID)

	if err := c.createPeerConnection(); err != nil {
		c.Close()
		return fmt.Errorf("peer connection: %w", err)
	}
	if err := sig.send(signalMessage{Type: "startSession", PeerID: producerID}); err != nil {
		c.Close()
		return fmt.Errorf("%w: start session: %w", ErrSignalling, err)
	}

	c.wg.Add(1)
	go c.handleSignalling()

	select {
	case <-c.videoUp:
		c.logger.Info("video connected")
		return nil
	case <-ctx.Done():
		c.Close()
		return fmt.Errorf("%w: %w", ErrNoVideo, ctx.Err())
	}
}

func (c *Client) createPeerConnection() error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	c.pc = pc

	recvOnly := webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, recvOnly); err != nil {
		return err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, recvOnly); err != nil {
		return err
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		mime := track.Codec().MimeType
		c.logger.Info("track received", "kind", track.Kind(), "codec", mime)
		switch {
		case strings.EqualFold(mime, webrtc.MimeTypeH264):
			c.wg.Add(1)
			go c.readVideo(track)
		case strings.EqualFold(mime, webrtc.MimeTypeOpus):
			c.wg.Add(1)
			go c.readAudio(track)
		default:
			c.logger.Warn("unsupported track codec", "codec", mime)
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.sendICE(candidate.ToJSON())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.logger.Info("connection state", "state", state)
	})
	return nil
}

func (c *Client) handleSignalling() {
	defer c.wg.Done()
	for {
		msg, err := c.sig.read()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn("signalling closed", "error", err)
			}
			return
		}

		switch msg.Type {
		case "sessionStarted":
			c.setSession(msg.SessionID)
		case "peer":
			c.handlePeer(msg)
		case "endSession":
			c.logger.Info("session ended by device")
			return
		case "error":
			c.logger.Warn("signalling error from server", "message", msg)
		}
	}
}

func (c *Client) setSession(id string) {
	c.sessionMu.Lock()
	c.sessionID = id
	pending := c.pendingICE
	c.pendingICE = nil
	c.sessionMu.Unlock()

	for _, cand := range pending {
		c.sendICE(cand)
	}
}

func (c *Client) handlePeer(msg signalMessage) {
	if msg.SDP != nil && msg.SDP.Type == "offer" {
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP}
		if err := c.answer(offer); err != nil {
			c.logger.Error("negotiation failed", "error", err)
		}
	}
	if msg.ICE != nil {
		err := c.pc.AddICECandidate(webrtc.ICECandidateInit{
			Candidate:     msg.ICE.Candidate,
			SDPMid:        msg.ICE.SDPMid,
			SDPMLineIndex: msg.ICE.SDPMLineIndex,
		})
		if err != nil {
			c.logger.Debug("remote candidate rejected", "error", err)
		}
	}
}

func (c *Client) answer(offer webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	c.sessionMu.Lock()
	id := c.sessionID
	c.sessionMu.Unlock()
	return c.sig.send(signalMessage{
		Type:      "peer",
		SessionID: id,
		SDP:       &sdpPayload{Type: answer.Type.String(), SDP: answer.SDP},
	})
}

func (c *Client) sendICE(cand webrtc.ICECandidateInit) {
	c.sessionMu.Lock()
	id := c.sessionID
	if id == "" {
		c.pendingICE = append(c.pendingICE, cand)
		c.sessionMu.Unlock()
		return
	}
	c.sessionMu.Unlock()

	err := c.sig.send(signalMessage{
		Type:      "peer",
		SessionID: id,
		ICE: &icePayload{
			Candidate:     cand.Candidate,
			SDPMid:        cand.SDPMid,
			SDPMLineIndex: cand.SDPMLineIndex,
		},
	})
	if err != nil {
		c.logger.Debug("send candidate failed", "error", err)
	}
}

func (c *Client) readVideo(track *webrtc.TrackRemote) {
	defer c.wg.Done()
	c.videoOnce.Do(func() { close(c.videoUp) })

	var (
		gop        gopAssembler
		lastDecode time.Time
		decoding   sync.WaitGroup
		busy       = make(chan struct{}, 1)
	)
	defer decoding.Wait()

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		complete, err := gop.push(pkt)
		if err != nil {
			c.logger.Debug("h264 depacketize failed", "error", err)
			continue
		}
		if !complete || time.Since(lastDecode) < c.cfg.DecodeInterval {
			continue
		}
		stream := gop.snapshot()
		if stream == nil {
			continue
		}

		// One decode at a time; packets keep flowing meanwhile.
		select {
		case busy <- struct{}{}:
		default:
			continue
		}
		lastDecode = time.Now()
		decoding.Add(1)
		go func() {
			defer decoding.Done()
			defer func() { <-busy }()
			c.decode(stream)
		}()
	}
}

func (c *Client) decode(stream []byte) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	jpeg, err := c.cfg.Decoder.Decode(ctx, stream)
	if err != nil {
		c.logger.Debug("frame decode failed", "error", err)
		return
	}
	c.setFrame(jpeg)
}

func (c *Client) setFrame(jpeg []byte) {
	c.frameMu.Lock()
	c.frame = jpeg
	ready := c.frameReady
	c.frameReady = make(chan struct{})
	c.frameMu.Unlock()
	close(ready)
}

func (c *Client) readAudio(track *webrtc.TrackRemote) {
	defer c.wg.Done()
	dec, err := newOpusTrack(int(track.Codec().Channels))
	if err != nil {
		c.logger.Error("opus decoder unavailable", "error", err)
		return
	}
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		mono, err := dec.decode(pkt.Payload)
		if err != nil {
			c.audio.decodeFailed(err)
			continue
		}
		c.audio.deliver(mono, opusRate)
	}
}

// Frame returns the newest decoded picture, waiting for the first one.
func (c *Client) Frame(ctx context.Context) ([]byte, error) {
	for {
		c.frameMu.RLock()
		frame, ready := c.frame, c.frameReady
		c.frameMu.RUnlock()
		if frame != nil {
			return frame, nil
		}
		select {
		case <-ready:
		case <-c.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Name returns "remote".
func (c *Client) Name() string { return "remote" }

// Close tears down the session and waits for track readers.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.pc != nil {
			errs = append(errs, c.pc.Close())
		}
		if c.sig != nil {
			errs = append(errs, c.sig.close())
		}
		c.wg.Wait()
		errs = append(errs, c.audio.Close())
	})
	return errors.Join(errs...)
}
