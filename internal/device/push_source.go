package device

import (
	"context"
	"errors"
	"sync"

	"mapclient.gnet.app/internal/geo"
	"mapclient.gnet.app/internal/location"
	"mapclient.gnet.app/internal/models"
)

// ErrInvalidPosition is returned by Push for coordinates out of range.
var ErrInvalidPosition = errors.New("invalid position")

// PushSource is a position source fed from outside, e.g. by the shell
// posting fixes to the local HTTP API.
type PushSource struct {
	granted bool

	mu       sync.Mutex
	watchers map[int]func(models.LatLng)
	nextID   int
}

// NewPushSource creates a source. granted is the answer to every permission request.
func NewPushSource(granted bool) *PushSource {
	return &PushSource{
		granted:  granted,
		watchers: make(map[int]func(models.LatLng)),
	}
}

func (p *PushSource) RequestPermission(context.Context) (bool, error) {
	return p.granted, nil
}

func (p *PushSource) Watch(_ context.Context, onUpdate func(models.LatLng)) (location.Subscription, error) {
	if !p.granted {
		return nil, errors.New("location permission not granted")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = onUpdate
	return &pushSubscription{source: p, id: id}, nil
}

// Push delivers ll to every active watch.
func (p *PushSource) Push(ll models.LatLng) error {
	if !geo.IsValidLatLon(ll.Latitude, ll.Longitude) {
		return ErrInvalidPosition
	}
	p.mu.Lock()
	watchers := make([]func(models.LatLng), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()

	for _, fn := range watchers {
		fn(ll)
	}
	return nil
}

type pushSubscription struct {
	source *PushSource
	id     int
	once   sync.Once
}

func (s *pushSubscription) Remove() {
	s.once.Do(func() {
		s.source.mu.Lock()
		delete(s.source.watchers, s.id)
		s.source.mu.Unlock()
	})
}
