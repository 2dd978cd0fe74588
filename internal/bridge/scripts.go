package bridge

import (
	"bytes"
	"embed"
	"fmt"
	"net/url"
	"text/template"
	"time"
)

//go:embed scripts/*.js.tmpl
var scriptFS embed.FS

var scripts = template.Must(template.ParseFS(scriptFS, "scripts/*.js.tmpl"))

const (
	// DefaultChannel is the window object the embedded content posts messages to.
	DefaultChannel = "ReactNativeWebView"

	DefaultRetryInterval = 250 * time.Millisecond
	DefaultFrameRetries  = 120
	DefaultMapRetries    = 60
)

// ScriptConfig parameterizes the scripts injected into the map page.
type ScriptConfig struct {
	ServerURL     string
	APIKey        string
	Channel       string
	RetryInterval time.Duration
	FrameRetries  int
	MapRetries    int
}

// DefaultScriptConfig returns the standard retry budget for serverURL.
func DefaultScriptConfig(serverURL, apiKey string) ScriptConfig {
	return ScriptConfig{
		ServerURL:     serverURL,
		APIKey:        apiKey,
		Channel:       DefaultChannel,
		RetryInterval: DefaultRetryInterval,
		FrameRetries:  DefaultFrameRetries,
		MapRetries:    DefaultMapRetries,
	}
}

type scriptData struct {
	APIKey       string
	Origin       string
	Channel      string
	RetryMillis  int64
	FrameRetries int
	MapRetries   int
}

func (cfg ScriptConfig) data() scriptData {
	d := scriptData{
		APIKey:       cfg.APIKey,
		Channel:      cfg.Channel,
		RetryMillis:  cfg.RetryInterval.Milliseconds(),
		FrameRetries: cfg.FrameRetries,
		MapRetries:   cfg.MapRetries,
	}
	if d.Channel == "" {
		d.Channel = DefaultChannel
	}
	if d.RetryMillis <= 0 {
		d.RetryMillis = DefaultRetryInterval.Milliseconds()
	}
	if d.FrameRetries <= 0 {
		d.FrameRetries = DefaultFrameRetries
	}
	if d.MapRetries <= 0 {
		d.MapRetries = DefaultMapRetries
	}
	if u, err := url.Parse(cfg.ServerURL); err == nil && u.Scheme != "" && u.Host != "" {
		d.Origin = u.Scheme + "://" + u.Host
	}
	return d
}

// AuthScript renders the script that must run before the page loads. It
// makes the page (and its first sub-frame) send the API key on every
// API-shaped request.
func AuthScript(cfg ScriptConfig) (string, error) {
	return render("auth.js.tmpl", cfg)
}

// BootstrapScript renders the script that runs after the page loads. It
// installs the window.__gnet functions and starts posting events.
func BootstrapScript(cfg ScriptConfig) (string, error) {
	return render("bootstrap.js.tmpl", cfg)
}

func render(name string, cfg ScriptConfig) (string, error) {
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name, cfg.data()); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
