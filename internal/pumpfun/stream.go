package pumpfun

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// DefaultStreamURL is the PumpPortal data feed endpoint.
const DefaultStreamURL = "wss://pumpportal.fun/api/data"

// StreamConfig configures a listening session.
type StreamConfig struct {
	// URL is the WebSocket endpoint.
	URL string
	// SessionTimeout bounds the whole session; whatever was collected
	// when it expires is returned.
	SessionTimeout time.Duration
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// MaxEvents stops the session early once this many events arrived.
	MaxEvents int
}

// DefaultStreamConfig returns default session configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		URL:              DefaultStreamURL,
		SessionTimeout:   30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		MaxEvents:        50,
	}
}

// Stream collects token-creation events from the PumpPortal feed in
// bounded sessions. Best-effort: no reconnect loop, no persistent
// subscription state between sessions.
type Stream struct {
	config StreamConfig
}

// NewStream creates a stream with the given configuration.
// A nil config uses defaults.
func NewStream(config *StreamConfig) *Stream {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	return &Stream{config: cfg}
}

// Collect opens a session, subscribes to new-token events, and reads until
// the session budget expires, the caller context is cancelled, or MaxEvents
// events arrived. Partial results are returned without error; a session
// yielding zero events is a failure.
func (s *Stream) Collect(ctx context.Context) ([]NewTokenEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SessionTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		HandshakeTimeout: s.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, s.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadMessage when
	// the session budget or the caller context expires.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watcherDone:
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := conn.WriteJSON(map[string]string{"method": "subscribeNewToken"}); err != nil {
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	var events []NewTokenEvent
	for len(events) < s.config.MaxEvents {
		_, message, err := conn.ReadMessage()
		if err != nil {
			// Session over: budget expired, caller cancelled, or the
			// upstream dropped us. Keep what we have.
			break
		}

		var event NewTokenEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Debug().Err(err).Msg("pumpportal: skipping unparseable frame")
			continue
		}
		// Subscription acks and non-create frames carry no mint.
		if event.Mint == "" || (event.TxType != "" && event.TxType != "create") {
			continue
		}

		events = append(events, event)
	}

	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if len(events) == 0 {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("session yielded no events: %w", ctx.Err())
		}
		return nil, fmt.Errorf("session closed with no events")
	}

	return events, nil
}
