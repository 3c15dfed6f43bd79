// Copyright (c) 2025 MindStudio
// Licensed under the MIT License. See LICENSE file in the project root for details.

package comfyui

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

// event is one decoded status message from the server's event stream.
type event struct {
	Type     string
	PromptID string
	// Node is the executing node id. Empty with NodeSet true means the queue moved past the prompt.
	Node    string
	NodeSet bool
	// NodeType is the class of the failing node on execution_error.
	NodeType string
	Value    int
	Max      int
	Message  string
}

type rawEvent struct {
	Type string              `json:"type"`
	Data jsoniter.RawMessage `json:"data"`
}

type rawEventData struct {
	PromptID         string  `json:"prompt_id"`
	Node             *string `json:"node"`
	NodeID           string  `json:"node_id"`
	NodeType         string  `json:"node_type"`
	Value            float64 `json:"value"`
	Max              float64 `json:"max"`
	ExceptionMessage string  `json:"exception_message"`
	ExceptionType    string  `json:"exception_type"`
}

func decodeEvent(msg []byte) (event, bool) {
	var raw rawEvent
	if err := json.Unmarshal(msg, &raw); err != nil || raw.Type == "" {
		return event{}, false
	}
	ev := event{Type: raw.Type}
	if len(raw.Data) == 0 {
		return ev, true
	}
	var d rawEventData
	if err := json.Unmarshal(raw.Data, &d); err != nil {
		return ev, true
	}
	ev.PromptID = d.PromptID
	if _, present := jsonHasKey(raw.Data, "node"); present {
		ev.NodeSet = true
	}
	if d.Node != nil {
		ev.Node = *d.Node
	} else if d.NodeID != "" {
		ev.Node = d.NodeID
	}
	ev.NodeType = d.NodeType
	ev.Value = int(d.Value)
	ev.Max = int(d.Max)
	ev.Message = d.ExceptionMessage
	if ev.Message == "" {
		ev.Message = d.ExceptionType
	}
	return ev, true
}

func jsonHasKey(data []byte, key string) (jsoniter.RawMessage, bool) {
	var m map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// eventStream owns one websocket connection and a reader goroutine feeding Events.
type eventStream struct {
	conn    *websocket.Conn
	events  chan event
	done    chan struct{}
	closing atomic.Bool
	once    sync.Once

	mu  sync.Mutex
	err error
}

// wsURL turns the HTTP base URL into the event endpoint for clientID.
func wsURL(baseURL, clientID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func openStream(ctx context.Context, dialer *websocket.Dialer, baseURL, clientID string) (*eventStream, error) {
	target, err := wsURL(baseURL, clientID)
	if err != nil {
		return nil, err
	}
	conn, resp, err := dialer.DialContext(ctx, target, http.Header{})
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	s := &eventStream{
		conn:   conn,
		events: make(chan event, 64),
		done:   make(chan struct{}),
	}
	go s.read()
	return s, nil
}

func (s *eventStream) read() {
	defer close(s.events)
	for {
		kind, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closing.Load() {
				s.setErr(err)
			}
			return
		}
		// Binary frames carry preview images.
		if kind != websocket.TextMessage {
			continue
		}
		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Events is closed when the connection ends for any reason.
func (s *eventStream) Events() <-chan event { return s.events }

// Err reports why the stream ended when it was not closed locally.
func (s *eventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *eventStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
		s.err = errors.New("server closed the connection")
		return
	}
	s.err = err
}

// Close is safe to call more than once.
func (s *eventStream) Close() {
	s.once.Do(func() {
		s.closing.Store(true)
		close(s.done)
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	})
}
