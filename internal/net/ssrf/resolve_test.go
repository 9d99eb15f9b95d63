package ssrf

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestValidateAndResolveRejectsInternalAddresses(t *testing.T) {
	blocked := []string{
		"http://127.0.0.1",
		"http://127.0.0.1:8080/admin",
		"http://192.168.1.1",
		"http://10.0.0.5/latest",
		"http://169.254.169.254/latest/meta-data/",
		"http://[::1]",
		"http://100.64.0.1",
	}
	for _, rawURL := range blocked {
		if _, err := ValidateAndResolve(context.Background(), rawURL); err == nil {
			t.Errorf("ValidateAndResolve(%q) = nil, want SSRF rejection", rawURL)
		}
	}
}

func TestValidateAndResolveRejectsBadSchemes(t *testing.T) {
	for _, rawURL := range []string{"ftp://example.com/file", "file:///etc/passwd", "gopher://example.com"} {
		if _, err := ValidateAndResolve(context.Background(), rawURL); err == nil {
			t.Errorf("ValidateAndResolve(%q) = nil, want scheme rejection", rawURL)
		}
	}
}

func TestValidateAndResolveDefaultPorts(t *testing.T) {
	// 1.1.1.1 is a public literal, so no DNS round trip is needed.
	res, err := ValidateAndResolve(context.Background(), "https://1.1.1.1/path")
	if err != nil {
		t.Fatalf("ValidateAndResolve() error = %v", err)
	}
	if res.Port != "443" {
		t.Errorf("default https port = %s, want 443", res.Port)
	}
	if len(res.Addrs) != 1 || !res.Addrs[0].Equal(net.ParseIP("1.1.1.1")) {
		t.Errorf("addrs = %v, want [1.1.1.1]", res.Addrs)
	}

	res, err = ValidateAndResolve(context.Background(), "http://1.1.1.1")
	if err != nil {
		t.Fatalf("ValidateAndResolve() error = %v", err)
	}
	if res.Port != "80" {
		t.Errorf("default http port = %s, want 80", res.Port)
	}
}

func TestPinnedClientDialsOnlyPinnedAddresses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pinned"))
	}))
	defer server.Close()

	serverURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}

	// The request names a host that never resolves; only the pinned
	// address set decides where the connection goes.
	res := &Resolution{
		Host:  "pinned.invalid",
		Port:  serverURL.Port(),
		Addrs: []net.IP{net.ParseIP(serverURL.Hostname())},
	}
	client := PinnedClient(res, 5*time.Second)

	resp, err := client.Get("http://pinned.invalid:" + serverURL.Port() + "/")
	if err != nil {
		t.Fatalf("pinned request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPinnedClientDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
	}))
	defer server.Close()

	serverURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}

	res := &Resolution{
		Host:  "pinned.invalid",
		Port:  serverURL.Port(),
		Addrs: []net.IP{net.ParseIP(serverURL.Hostname())},
	}
	client := PinnedClient(res, 5*time.Second)

	resp, err := client.Get("http://pinned.invalid:" + serverURL.Port() + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want the 302 surfaced as-is", resp.StatusCode)
	}
}
