package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveCountry(t *testing.T) {
	lookup := func(ip string) (string, error) {
		if ip == "203.0.113.7" {
			return "id", nil
		}
		return "", errors.New("not found")
	}

	tests := []struct {
		name   string
		header map[string]string
		remote string
		lookup CountryLookup
		want   string
	}{
		{name: "edge header wins", header: map[string]string{"CF-IPCountry": "sg"}, remote: "203.0.113.7:1000", lookup: lookup, want: "SG"},
		{name: "unknown edge value ignored", header: map[string]string{"CF-IPCountry": "XX"}, remote: "203.0.113.7:1000", lookup: lookup, want: "ID"},
		{name: "geoip lookup", remote: "203.0.113.7:1000", lookup: lookup, want: "ID"},
		{name: "lookup error", remote: "198.51.100.1:1000", lookup: lookup, want: ""},
		{name: "no lookup", remote: "203.0.113.7:1000", want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			if got := ResolveCountry(req, tc.lookup); got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountryMiddlewareStoresCode(t *testing.T) {
	var got string
	h := Country(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Country-Code", "nl")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "NL" {
		t.Fatalf("country = %q, want NL", got)
	}
}
