// Package bridge implements the message convention between the host and the
// embedded map content: typed events posted by the content, directives
// injected by the host and the scripts that install both sides.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mapclient.gnet.app/internal/metrics"
)

// EventType is the "type" discriminator of a content message.
type EventType string

const (
	EventWebViewLoaded    EventType = "WEBVIEW_LOADED"
	EventPointClicksReady EventType = "POINT_CLICKS_READY"
	EventPointClick       EventType = "POINT_CLICK"
	EventMapInteraction   EventType = "MAP_INTERACTION"
	EventZoomChanged      EventType = "ZOOM_CHANGED"
)

// ErrMalformedMessage is returned for messages that are not valid events.
var ErrMalformedMessage = errors.New("malformed bridge message")

// Event is one decoded content message.
type Event interface {
	Type() EventType
}

// WebViewLoaded is posted when the bootstrap script starts on a document.
// Page identifies that document and is empty when the content sent none.
type WebViewLoaded struct {
	Page string
}

// PointClicksReady is posted once marker click handlers are installed.
// Zoom and MaxZoom are nil when the map did not report them. Page matches
// the WebViewLoaded of the same document.
type PointClicksReady struct {
	Page    string
	Zoom    *float64
	MaxZoom *float64
}

type PointClick struct {
	Latitude  float64
	Longitude float64
}

// MapInteraction reports a user gesture on the map. Kind is the DOM or
// map event name, e.g. "touchstart".
type MapInteraction struct {
	Kind string
}

type ZoomChanged struct {
	Zoom float64
}

func (WebViewLoaded) Type() EventType    { return EventWebViewLoaded }
func (PointClicksReady) Type() EventType { return EventPointClicksReady }
func (PointClick) Type() EventType       { return EventPointClick }
func (MapInteraction) Type() EventType   { return EventMapInteraction }
func (ZoomChanged) Type() EventType      { return EventZoomChanged }

type wireMessage struct {
	Type      EventType `json:"type"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Zoom      *float64  `json:"zoom"`
	MaxZoom   *float64  `json:"maxZoom"`
	Kind      string    `json:"kind"`
	Page      string    `json:"page"`
}

// Decode parses a raw content message. Unknown types decode to (nil, nil).
func Decode(raw []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case EventWebViewLoaded:
		return WebViewLoaded{Page: msg.Page}, nil
	case EventPointClicksReady:
		return PointClicksReady{Page: msg.Page, Zoom: msg.Zoom, MaxZoom: msg.MaxZoom}, nil
	case EventPointClick:
		if msg.Latitude == nil || msg.Longitude == nil {
			return nil, fmt.Errorf("%w: POINT_CLICK without coordinates", ErrMalformedMessage)
		}
		return PointClick{Latitude: *msg.Latitude, Longitude: *msg.Longitude}, nil
	case EventMapInteraction:
		return MapInteraction{Kind: msg.Kind}, nil
	case EventZoomChanged:
		if msg.Zoom == nil {
			return nil, fmt.Errorf("%w: ZOOM_CHANGED without zoom", ErrMalformedMessage)
		}
		return ZoomChanged{Zoom: *msg.Zoom}, nil
	default:
		return nil, nil
	}
}

// Handler receives one decoded event.
type Handler func(Event)

// Dispatcher routes decoded content messages to the handlers registered for
// their type.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	logger   *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[EventType][]Handler),
		logger:   logger,
	}
}

// On registers h for events of type t. Handlers run in registration order.
func (d *Dispatcher) On(t EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// Dispatch decodes raw and delivers it. Unknown event types are ignored.
func (d *Dispatcher) Dispatch(raw []byte) error {
	ev, err := Decode(raw)
	if err != nil {
		metrics.BridgeEvents.WithLabelValues("malformed").Inc()
		d.logger.Warn("Dropping malformed bridge message", "error", err)
		return err
	}
	if ev == nil {
		metrics.BridgeEvents.WithLabelValues("unknown").Inc()
		d.logger.Debug("Ignoring unknown bridge message", "raw", string(raw))
		return nil
	}

	metrics.BridgeEvents.WithLabelValues(string(ev.Type())).Inc()

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[ev.Type()]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}
