package discovery

import (
	"net"
	"testing"

	"github.com/grandcat/zeroconf"
)

func TestText(t *testing.T) {
	txt := Text(map[string]string{
		"version": "1.0",
		"api":     "/api/v1",
		"socket":  "",
		"":        "x",
	})

	want := []string{"api=/api/v1", "version=1.0"}
	if len(txt) != len(want) {
		t.Fatalf("Expected %v, got %v", want, txt)
	}
	for i := range want {
		if txt[i] != want[i] {
			t.Errorf("Expected record %d to be %s, got %s", i, want[i], txt[i])
		}
	}
}

func TestParseText(t *testing.T) {
	values := ParseText([]string{"type=sine", "flag", "tx_freq=4.33e+08", "=bad", "eq=a=b"})

	tests := map[string]string{
		"type":    "sine",
		"flag":    "",
		"tx_freq": "4.33e+08",
		"eq":      "a=b",
	}
	if len(values) != len(tests) {
		t.Fatalf("Expected %d values, got %v", len(tests), values)
	}
	for k, v := range tests {
		if values[k] != v {
			t.Errorf("Expected %s=%q, got %q", k, v, values[k])
		}
	}
}

func TestHostFromEntry(t *testing.T) {
	e := zeroconf.NewServiceEntry(`bench\ gen`, ServiceType, Domain)
	e.HostName = "bench.local."
	e.Port = 8080
	e.Text = []string{"version=1.0"}
	e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.20")}

	h := hostFromEntry(e)
	if h.Instance != "bench gen" {
		t.Errorf("Expected unescaped instance, got %q", h.Instance)
	}
	if len(h.Addresses) != 2 {
		t.Fatalf("Expected 2 addresses, got %d", len(h.Addresses))
	}
	if h.Text["version"] != "1.0" {
		t.Errorf("Expected version 1.0, got %q", h.Text["version"])
	}
	if url := h.URL(); url != "http://192.168.1.20:8080/api/v1" {
		t.Errorf("Expected IPv4 URL, got %s", url)
	}

	h.Addresses = nil
	if url := h.URL(); url != "http://bench.local:8080/api/v1" {
		t.Errorf("Expected hostname URL, got %s", url)
	}
}

func TestAnnounceValidation(t *testing.T) {
	if _, err := Announce("", 8080, nil); err == nil {
		t.Error("Expected error for empty instance")
	}
	if _, err := Announce("siggen", 0, nil); err == nil {
		t.Error("Expected error for port 0")
	}

	var a *Announcer
	a.Shutdown()
}
