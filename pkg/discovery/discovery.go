// Package discovery announces and finds siggen instances over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/dougsko/siggen/pkg/logging"
	"github.com/grandcat/zeroconf"
)

const (
	// ServiceType is the DNS-SD service siggen registers
	ServiceType = "_siggen._tcp"
	// Domain is the mDNS domain
	Domain = "local."
)

// Announcer keeps a service registration alive until Shutdown
type Announcer struct {
	server   *zeroconf.Server
	instance string
	port     int
}

// Announce registers instance on port with the given TXT records
func Announce(instance string, port int, txt []string) (*Announcer, error) {
	if instance == "" {
		return nil, fmt.Errorf("mdns: missing instance name")
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("mdns: invalid port %d", port)
	}

	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	logging.Infof("discovery", "Announcing %q as %s on port %d", instance, ServiceType, port)

	return &Announcer{server: server, instance: instance, port: port}, nil
}

// SetText replaces the announced TXT records
func (a *Announcer) SetText(txt []string) {
	a.server.SetText(txt)
}

// Shutdown withdraws the announcement
func (a *Announcer) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	logging.Debugf("discovery", "Withdrew %q", a.instance)
}

// Text builds the TXT records of an announcement. Empty values are left
// out.
func Text(values map[string]string) []string {
	txt := make([]string, 0, len(values))
	for k, v := range values {
		if k == "" || v == "" {
			continue
		}
		txt = append(txt, k+"="+v)
	}
	sort.Strings(txt)
	return txt
}

// ParseText splits key=value TXT records. Records without '=' map to an
// empty value.
func ParseText(txt []string) map[string]string {
	values := make(map[string]string, len(txt))
	for _, record := range txt {
		k, v, _ := strings.Cut(record, "=")
		if k == "" {
			continue
		}
		values[k] = v
	}
	return values
}

// Host is a discovered siggen instance
type Host struct {
	Instance  string            `json:"instance"`
	Hostname  string            `json:"hostname"`
	Addresses []net.IP          `json:"addresses"`
	Port      int               `json:"port"`
	Text      map[string]string `json:"text"`
}

// URL returns the HTTP API base of h, preferring IPv4
func (h Host) URL() string {
	host := strings.TrimSuffix(h.Hostname, ".")
	for _, ip := range h.Addresses {
		if ip.To4() != nil {
			host = ip.String()
			break
		}
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(h.Port)) + "/api/v1"
}

// Browse collects announcements for timeout and returns them deduplicated
// by host and port, sorted by instance name.
func Browse(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("resolver error: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(map[string]Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					return
				}
				if e == nil {
					continue
				}
				h := hostFromEntry(e)
				found[fmt.Sprintf("%s|%d", h.Hostname, h.Port)] = h
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse error: %w", err)
	}
	<-done

	hosts := make([]Host, 0, len(found))
	for _, h := range found {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Instance != hosts[j].Instance {
			return hosts[i].Instance < hosts[j].Instance
		}
		return hosts[i].Port < hosts[j].Port
	})
	return hosts, nil
}

func hostFromEntry(e *zeroconf.ServiceEntry) Host {
	addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
	addrs = append(addrs, e.AddrIPv4...)
	addrs = append(addrs, e.AddrIPv6...)
	return Host{
		Instance:  cleanInstance(e.Instance),
		Hostname:  e.HostName,
		Addresses: addrs,
		Port:      e.Port,
		Text:      ParseText(e.Text),
	}
}

// cleanInstance removes DNS-SD escapes such as "\ "
func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
