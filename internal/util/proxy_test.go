package util

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewProxyFunc_NoProxy(t *testing.T) {
	proxy := NewProxyFunc("http://proxy:3128", "", "internal.example")
	req := httptest.NewRequest(http.MethodGet, "http://gpu.internal.example:11434/api/generate", nil)
	u, err := proxy(req)
	if err != nil {
		t.Fatalf("proxy: %v", err)
	}
	if u != nil {
		t.Errorf("Expected direct connection for no_proxy host, got %v", u)
	}

	req = httptest.NewRequest(http.MethodGet, "http://other:11434/api/generate", nil)
	u, _ = proxy(req)
	if u == nil || u.Host != "proxy:3128" {
		t.Errorf("Expected proxy, got %v", u)
	}
}

func TestNewProxyFunc_SchemeSelection(t *testing.T) {
	proxy := NewProxyFunc("http://plain:3128", "http://secure:3129", "")

	req := httptest.NewRequest(http.MethodGet, "https://api.openai.com/v1/chat/completions", nil)
	if u, _ := proxy(req); u == nil || u.Host != "secure:3129" {
		t.Errorf("https request should use the https proxy, got %v", u)
	}
	req = httptest.NewRequest(http.MethodGet, "http://localhost:11434/api/generate", nil)
	if u, _ := proxy(req); u == nil || u.Host != "plain:3128" {
		t.Errorf("http request should use the http proxy, got %v", u)
	}
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(5*time.Second, "http://proxy:3128", "", "")
	if c.Timeout != 5*time.Second {
		t.Errorf("timeout = %s", c.Timeout)
	}
	tr, ok := c.Transport.(*http.Transport)
	if !ok || tr.Proxy == nil {
		t.Fatal("client should carry a transport with a proxy func")
	}
	if tr == http.DefaultTransport {
		t.Error("default transport must not be shared")
	}
}
