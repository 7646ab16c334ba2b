package config

import (
	"sort"
	"strings"
	"time"
)

// Transports the CLI can use to reach a configuration service.
const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

// DefaultServiceURL is used when nothing else names a service.
const DefaultServiceURL = "http://localhost:8099"

// Registry represents the entire user configuration file.
// It stores known configuration services and application preferences.
type Registry struct {
	Version     int                      `yaml:"version"`
	Services    map[string]*KnownService `yaml:"services,omitempty"` // Keyed by mDNS instance name
	Preferences *Preferences             `yaml:"preferences,omitempty"`
}

// KnownService is a configuration service seen by a scan.
type KnownService struct {
	URL      string    `yaml:"url"`
	Version  string    `yaml:"version,omitempty"`
	LastSeen time.Time `yaml:"last_seen,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	ServiceURL      string `yaml:"service_url,omitempty"` // Service used when --service is not given
	Transport       string `yaml:"transport"`             // http or ws
	DefaultTab      string `yaml:"default_tab"`           // Tab the panel opens on
	AutoDiscover    bool   `yaml:"auto_discover"`         // Fall back to the last scanned service
	DiscoverTimeout int    `yaml:"discover_timeout"`      // mDNS scan timeout in seconds
}

func defaultPreferences() *Preferences {
	return &Preferences{
		Transport:       TransportHTTP,
		DefaultTab:      "entities",
		AutoDiscover:    true,
		DiscoverTimeout: 3,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     1,
		Services:    make(map[string]*KnownService),
		Preferences: defaultPreferences(),
	}
}

// normalize repairs a registry read from disk: missing sections get
// defaults, hand-edited preferences outside their range are reset and
// services without a URL are dropped.
func (r *Registry) normalize() {
	if r.Services == nil {
		r.Services = make(map[string]*KnownService)
	}
	for name, svc := range r.Services {
		if svc == nil || svc.URL == "" {
			delete(r.Services, name)
		}
	}

	if r.Preferences == nil {
		r.Preferences = defaultPreferences()
		return
	}
	def := defaultPreferences()
	p := r.Preferences
	if p.Transport != TransportHTTP && p.Transport != TransportWS {
		p.Transport = def.Transport
	}
	switch p.DefaultTab {
	case "entities", "overrides", "devices":
	default:
		p.DefaultTab = def.DefaultTab
	}
	if p.DiscoverTimeout <= 0 {
		p.DiscoverTimeout = def.DiscoverTimeout
	}
}

// GetService retrieves a known service by instance name.
// Returns nil if it was never seen.
func (r *Registry) GetService(instance string) *KnownService {
	return r.Services[instance]
}

// RememberService records a scanned service.
func (r *Registry) RememberService(instance, url, version string) *KnownService {
	if r.Services == nil {
		r.Services = make(map[string]*KnownService)
	}
	svc, ok := r.Services[instance]
	if !ok {
		svc = &KnownService{}
		r.Services[instance] = svc
	}
	svc.URL = url
	svc.Version = version
	svc.LastSeen = time.Now()
	return svc
}

// LastSeenService returns the most recently seen service, or nil.
func (r *Registry) LastSeenService() *KnownService {
	var latest *KnownService
	names := make([]string, 0, len(r.Services))
	for name := range r.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		svc := r.Services[name]
		if latest == nil || svc.LastSeen.After(latest.LastSeen) {
			latest = svc
		}
	}
	return latest
}

// ResolveServiceURL picks the service to talk to: the explicit value first,
// then the preference, then the last scanned service, then the default.
func (r *Registry) ResolveServiceURL(explicit string) string {
	if explicit != "" {
		return strings.TrimRight(explicit, "/")
	}
	if r.Preferences != nil && r.Preferences.ServiceURL != "" {
		return strings.TrimRight(r.Preferences.ServiceURL, "/")
	}
	if r.Preferences == nil || r.Preferences.AutoDiscover {
		if svc := r.LastSeenService(); svc != nil && svc.URL != "" {
			return svc.URL
		}
	}
	return DefaultServiceURL
}

// ResolveTransport returns the explicit transport, or the preference.
func (r *Registry) ResolveTransport(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if r.Preferences != nil && r.Preferences.Transport != "" {
		return r.Preferences.Transport
	}
	return TransportHTTP
}
