package bridge

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"mapclient.gnet.app/internal/metrics"
	"mapclient.gnet.app/internal/models"
)

// ScriptInjector evaluates a script inside the embedded content. Delivery is
// fire-and-forget; an error means the script could not be handed over.
type ScriptInjector interface {
	InjectJavaScript(script string) error
}

// Directives sends host commands to the functions the bootstrap script
// installs under window.__gnet. Each snippet is a no-op when the function
// is not installed yet.
type Directives struct {
	inj    ScriptInjector
	logger *slog.Logger
}

func NewDirectives(inj ScriptInjector, logger *slog.Logger) *Directives {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directives{inj: inj, logger: logger}
}

func (d *Directives) SetUserLocation(ll models.LatLng) {
	d.send("setUserLocation", num(ll.Latitude), num(ll.Longitude))
}

// SetView centers the map on ll. A zoom <= 0 selects the map's max zoom.
func (d *Directives) SetView(ll models.LatLng, zoom float64) {
	z := "null"
	if zoom > 0 {
		z = num(zoom)
	}
	d.send("setView", num(ll.Latitude), num(ll.Longitude), z)
}

func (d *Directives) PanTo(ll models.LatLng) {
	d.send("panTo", num(ll.Latitude), num(ll.Longitude))
}

func (d *Directives) Highlight(ll models.LatLng) {
	d.send("highlight", num(ll.Latitude), num(ll.Longitude))
}

func (d *Directives) SetMarkerRadii(ambient, user float64) {
	d.send("setMarkerRadii", num(ambient), num(user))
}

func (d *Directives) send(fn string, args ...string) {
	metrics.BridgeDirectives.WithLabelValues(fn).Inc()
	if err := d.inj.InjectJavaScript(Snippet(fn, args...)); err != nil {
		d.logger.Warn("Failed to inject directive", "directive", fn, "error", err)
	}
}

// Snippet builds a guarded call of window.__gnet[fn] with pre-rendered
// JavaScript argument literals.
func Snippet(fn string, args ...string) string {
	return fmt.Sprintf(
		"(function(){try{if(window.__gnet&&window.__gnet.%[1]s){window.__gnet.%[1]s(%[2]s);}}catch(e){}})();\ntrue;",
		fn, strings.Join(args, ","),
	)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// QueueInjector buffers scripts until a polling shell picks them up. When
// full, the oldest script is dropped.
type QueueInjector struct {
	mu      sync.Mutex
	scripts []string
	limit   int
}

func NewQueueInjector(limit int) *QueueInjector {
	if limit <= 0 {
		limit = 256
	}
	return &QueueInjector{limit: limit}
}

func (q *QueueInjector) InjectJavaScript(script string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.scripts) >= q.limit {
		q.scripts = q.scripts[1:]
	}
	q.scripts = append(q.scripts, script)
	return nil
}

// Drain returns the buffered scripts in order and empties the queue.
func (q *QueueInjector) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.scripts
	q.scripts = nil
	return out
}

func (q *QueueInjector) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.scripts)
}
