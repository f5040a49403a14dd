// Package conf holds the agent settings and the viper plumbing that loads
// them. The cache version and asset manifest are deliberately configuration
// rather than compiled-in constants so tests and deployments can run against
// alternate manifests.
package conf

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// MainSettings identifies the agent instance.
type MainSettings struct {
	Name     string `yaml:"name" mapstructure:"name"`
	LogLevel string `yaml:"loglevel" mapstructure:"loglevel"`
}

// CacheSettings describe the versioned offline cache and its precache
// manifest. Changing Version invalidates every previously created store on
// the next activation; changing Assets requires bumping Version.
type CacheSettings struct {
	// Version stamps the current cache store name, e.g. "daily-tracker-v2".
	Version string `yaml:"version" mapstructure:"version"`
	// Path is the bbolt database file backing all cache stores.
	Path string `yaml:"path" mapstructure:"path"`
	// Assets is the ordered precache manifest. Entries are either paths
	// relative to the upstream origin ("/", "/index.html") or absolute URLs
	// (cross-origin font files).
	Assets []string `yaml:"assets" mapstructure:"assets"`
	// Upstream is the origin the app is served from; relative asset entries
	// and intercepted requests resolve against it.
	Upstream string `yaml:"upstream" mapstructure:"upstream"`
}

// WebServerSettings configure the agent's HTTP surface.
type WebServerSettings struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
	Debug  bool   `yaml:"debug" mapstructure:"debug"`
}

// NotificationSettings hold the defaults applied when a push payload omits
// fields, plus the delivery targets.
type NotificationSettings struct {
	DefaultTitle string   `yaml:"defaulttitle" mapstructure:"defaulttitle"`
	DefaultBody  string   `yaml:"defaultbody" mapstructure:"defaultbody"`
	DefaultTag   string   `yaml:"defaulttag" mapstructure:"defaulttag"`
	Icon         string   `yaml:"icon" mapstructure:"icon"`
	Badge        string   `yaml:"badge" mapstructure:"badge"`
	// RecordTTL bounds how long an undisplayed record stays claimable for
	// click handling.
	RecordTTL Duration `yaml:"recordttl" mapstructure:"recordttl"`
	// Notifiers are shoutrrr URLs the rendered notification is forwarded to.
	Notifiers []string `yaml:"notifiers" mapstructure:"notifiers"`
}

// MQTTSettings configure the optional MQTT push source.
type MQTTSettings struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Broker         string   `yaml:"broker" mapstructure:"broker"`
	Topic          string   `yaml:"topic" mapstructure:"topic"`
	ClientID       string   `yaml:"clientid" mapstructure:"clientid"`
	ConnectTimeout Duration `yaml:"connecttimeout" mapstructure:"connecttimeout"`
}

// HistorySettings configure the sqlite notification history store.
type HistorySettings struct {
	Path          string `yaml:"path" mapstructure:"path"`
	RetentionDays int    `yaml:"retentiondays" mapstructure:"retentiondays"`
}

// PagesSettings configure the websocket link to controlled pages.
type PagesSettings struct {
	PingInterval Duration `yaml:"pinginterval" mapstructure:"pinginterval"`
	WriteTimeout Duration `yaml:"writetimeout" mapstructure:"writetimeout"`
}

// Settings is the root configuration object.
type Settings struct {
	Main         MainSettings         `yaml:"main" mapstructure:"main"`
	Cache        CacheSettings        `yaml:"cache" mapstructure:"cache"`
	WebServer    WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Notification NotificationSettings `yaml:"notification" mapstructure:"notification"`
	MQTT         MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	History      HistorySettings      `yaml:"history" mapstructure:"history"`
	Pages        PagesSettings        `yaml:"pages" mapstructure:"pages"`
}

// ScopeOrigin returns the scheme://host[:port] part of the upstream URL.
// Requests and windows are matched against it.
func (s *Settings) ScopeOrigin() (string, error) {
	u, err := url.Parse(s.Cache.Upstream)
	if err != nil {
		return "", fmt.Errorf("invalid upstream URL %q: %w", s.Cache.Upstream, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("upstream URL %q must be absolute", s.Cache.Upstream)
	}
	return u.Scheme + "://" + u.Host, nil
}

var (
	settingsInstance *Settings
	settingsMu       sync.RWMutex
)

// GetSettings returns the process-wide settings, or nil before Load.
func GetSettings() *Settings {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsInstance
}

// SetSettings installs settings as the process-wide instance. Exposed for
// tests and for the CLI after Load.
func SetSettings(s *Settings) {
	settingsMu.Lock()
	defer settingsMu.Unlock()
	settingsInstance = s
}

// Load reads settings from the given config file (YAML). An empty path falls
// back to offline-agent.yaml in the working directory and standard config
// locations. Environment variables prefixed OFFLINE_AGENT_ override file
// values.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("offline-agent")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/offline-agent")
		v.AddConfigPath("/etc/offline-agent")
	}
	v.SetEnvPrefix("OFFLINE_AGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath == "" && errors.As(err, &notFound) {
			// No config file is fine: defaults plus env cover a dev setup.
		} else {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(settings); err != nil {
		return nil, err
	}
	SetSettings(settings)
	return settings, nil
}

func validate(s *Settings) error {
	if s.Cache.Version == "" {
		return fmt.Errorf("cache.version must not be empty")
	}
	if _, err := s.ScopeOrigin(); err != nil {
		return err
	}
	for _, asset := range s.Cache.Assets {
		if asset == "" {
			return fmt.Errorf("cache.assets contains an empty entry")
		}
		if !strings.HasPrefix(asset, "/") && !strings.Contains(asset, "://") {
			return fmt.Errorf("cache.assets entry %q is neither a root-relative path nor an absolute URL", asset)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("main.name", "offline-agent")
	v.SetDefault("main.loglevel", "info")

	v.SetDefault("cache.version", "daily-tracker-v1")
	v.SetDefault("cache.path", "offline-cache.db")
	v.SetDefault("cache.upstream", "http://localhost:8080")
	v.SetDefault("cache.assets", DefaultAssets())

	v.SetDefault("webserver.listen", ":8090")
	v.SetDefault("webserver.debug", false)

	v.SetDefault("notification.defaulttitle", "Daily Tracker")
	v.SetDefault("notification.defaultbody", "Time to check in on your habits!")
	v.SetDefault("notification.defaulttag", "daily-tracker-reminder")
	v.SetDefault("notification.icon", "/icons/icon-192.png")
	v.SetDefault("notification.badge", "/icons/badge-72.png")
	v.SetDefault("notification.recordttl", "24h")
	v.SetDefault("notification.notifiers", []string{})

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic", "daily-tracker/push")
	v.SetDefault("mqtt.clientid", "offline-agent")
	v.SetDefault("mqtt.connecttimeout", "10s")

	v.SetDefault("history.path", "offline-history.db")
	v.SetDefault("history.retentiondays", 30)

	v.SetDefault("pages.pinginterval", "30s")
	v.SetDefault("pages.writetimeout", "10s")
}

// DefaultAssets is the stock precache manifest for the Daily Tracker shell.
// Deployments override it in config; tests supply their own.
func DefaultAssets() []string {
	return []string{
		"/",
		"/index.html",
		"/styles.css",
		"/app.js",
		"/manifest.webmanifest",
		"/icons/icon-192.png",
		"/icons/icon-512.png",
		"https://fonts.googleapis.com/css2?family=Inter:wght@400;600&display=swap",
		"https://fonts.gstatic.com/s/inter/v13/UcCO3FwrK3iLTeHuS_fvQtMwCp50KnMw2boKoduKmMEVuLyfAZ9hiA.woff2",
	}
}
