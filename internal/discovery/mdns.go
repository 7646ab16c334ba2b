package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/hubcfg/internal/logging"
)

const (
	// ServiceType is the mDNS service type hubcfg servers advertise
	ServiceType = "_hubcfg._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for service discovery
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is used when an entry carries no port
	DefaultPort = 8099

	// TXT record keys
	TXTPath    = "path"
	TXTVersion = "version"

	// APIPath is advertised under TXTPath
	APIPath = "/api"
)

// Scanner handles mDNS service discovery
type Scanner struct {
	// Timeout is the maximum time to wait for answers
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan discovers every configuration service on the local network until the
// timeout or ctx ends.
func (s *Scanner) Scan(ctx context.Context) ([]*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu       sync.Mutex
		services = make([]*Service, 0)
		seen     = make(map[string]bool)
		done     = make(chan struct{})
	)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		defer close(done)
		for entry := range entries {
			svc := s.parseServiceEntry(entry)
			if svc == nil {
				continue
			}
			mu.Lock()
			if !seen[svc.Instance] {
				seen[svc.Instance] = true
				services = append(services, svc)
				logging.Debug("Discovered service", zap.String("service", svc.String()))
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// the resolver closes entries once the browse context ends
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Service(nil), services...), nil
}

// WaitFor returns the first service whose instance name matches, or the first
// service at all when instance is empty.
func (s *Scanner) WaitFor(ctx context.Context, instance string) (*Service, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *Service, 1)

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	go func() {
		if svc := s.firstMatch(entries, instance); svc != nil {
			found <- svc
			cancel()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	select {
	case svc := <-found:
		return svc, nil
	case <-ctx.Done():
		select {
		case svc := <-found:
			return svc, nil
		default:
		}
		if instance == "" {
			return nil, fmt.Errorf("no configuration service found within %s", s.Timeout)
		}
		return nil, fmt.Errorf("service %q not found within %s", instance, s.Timeout)
	}
}

// firstMatch reads entries until one resolves to a service named instance.
// An empty instance matches any service. It returns nil once entries closes.
func (s *Scanner) firstMatch(entries <-chan *zeroconf.ServiceEntry, instance string) *Service {
	for entry := range entries {
		svc := s.parseServiceEntry(entry)
		if svc != nil && (instance == "" || svc.Instance == instance) {
			return svc
		}
	}
	return nil
}

// parseServiceEntry converts a zeroconf entry to a Service.
// Returns nil if the entry has no usable address
func (s *Scanner) parseServiceEntry(entry *zeroconf.ServiceEntry) *Service {
	if entry == nil || entry.Instance == "" {
		return nil
	}

	// prefer IPv4
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	return &Service{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     parseTXT(entry.Text),
		DiscoveredAt: time.Now(),
	}
}

// parseTXT splits "key=value" records. A key without value maps to "".
func parseTXT(records []string) map[string]string {
	metadata := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}

// Scan is a convenience function to scan with a custom timeout
func Scan(ctx context.Context, timeout time.Duration) ([]*Service, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.Scan(ctx)
}

// WaitFor returns the first matching service to answer within timeout.
func WaitFor(ctx context.Context, instance string, timeout time.Duration) (*Service, error) {
	scanner := NewScanner()
	if timeout > 0 {
		scanner.Timeout = timeout
	}
	return scanner.WaitFor(ctx, instance)
}

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server *zeroconf.Server
}

// TXTRecords builds the records a server advertises.
func TXTRecords(version string) []string {
	return []string{TXTPath + "=" + APIPath, TXTVersion + "=" + version}
}

// Advertise registers instance under ServiceType on every interface.
func Advertise(instance string, port int, version string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, port, TXTRecords(version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising over mDNS",
		zap.String("instance", instance),
		zap.String("type", ServiceType),
		zap.Int("port", port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the registration.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	logging.Debug("mDNS advertisement withdrawn")
}
