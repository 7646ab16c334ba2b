// Package discovery finds hubcfg configuration services on the local network
// and advertises them.
//
// Servers register the "_hubcfg._tcp" service type with two TXT records:
//
//	path=/api
//	version=<server version>
//
// Clients browse for that type and connect to Service.BaseURL.
//
// # Usage Example
//
//	services, err := discovery.Scan(ctx, 3*time.Second)
//	if err != nil {
//	    return err
//	}
//	for _, svc := range services {
//	    fmt.Println(svc, svc.Version())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Client and server must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
