package video

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// signalMessage is the GStreamer webrtcsink signalling envelope.
type signalMessage struct {
	Type      string      `json:"type"`
	PeerID    string      `json:"peerId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Producers []producer  `json:"producers,omitempty"`
	SDP       *sdpPayload `json:"sdp,omitempty"`
	ICE       *icePayload `json:"ice,omitempty"`
}

type producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type icePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// signaller speaks the signalling protocol over one websocket.
type signaller struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func dialSignaller(ctx context.Context, url string, timeout time.Duration) (*signaller, error) {
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignalling, err)
	}
	return &signaller{conn: conn}, nil
}

func (s *signaller) send(msg signalMessage) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *signaller) read() (signalMessage, error) {
	var msg signalMessage
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("%w: bad message: %w", ErrSignalling, err)
	}
	return msg, nil
}

// expect reads one message within timeout and checks its type.
func (s *signaller) expect(kind string, timeout time.Duration) (signalMessage, error) {
	s.conn.SetReadDeadline(time.Now().Add(timeout))
	defer s.conn.SetReadDeadline(time.Time{})

	msg, err := s.read()
	if err != nil {
		return msg, err
	}
	if msg.Type != kind {
		return msg, fmt.Errorf("%w: expected %q, got %q", ErrSignalling, kind, msg.Type)
	}
	return msg, nil
}

// welcome returns our peer id.
func (s *signaller) welcome(timeout time.Duration) (string, error) {
	msg, err := s.expect("welcome", timeout)
	if err != nil {
		return "", err
	}
	return msg.PeerID, nil
}

// findProducer returns the id of the producer whose meta name is name.
func (s *signaller) findProducer(name string, timeout time.Duration) (string, error) {
	if err := s.send(signalMessage{Type: "list"}); err != nil {
		return "", err
	}
	msg, err := s.expect("list", timeout)
	if err != nil {
		return "", err
	}
	for _, p := range msg.Producers {
		if p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q not among %d producers", ErrNoProducer, name, len(msg.Producers))
}

func (s *signaller) close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
