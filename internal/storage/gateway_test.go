package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/treenteq/harbor/internal/model"
)

// A real CIDv1 (raw codec) for locator validation.
const testCID = "bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy"

func newTestGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGateway(srv.URL, 5*time.Second)
}

func TestFetchJSON(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ipfs/"+testCID {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows":3}`))
	})

	p, err := g.Fetch(context.Background(), testCID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Kind != model.PayloadJSON {
		t.Errorf("Kind = %s, want json", p.Kind)
	}
	if p.Data != `{"rows":3}` {
		t.Errorf("Data = %q", p.Data)
	}
	if p.Encoding != "" {
		t.Errorf("Encoding = %q, want empty for text", p.Encoding)
	}
}

func TestFetchBinaryIsBase64(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xfe, 0xff}
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(raw)
	})

	p, err := g.Fetch(context.Background(), testCID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Kind != model.PayloadBinary {
		t.Errorf("Kind = %s, want binary", p.Kind)
	}
	if p.Encoding != "base64" {
		t.Errorf("Encoding = %q, want base64", p.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil || string(decoded) != string(raw) {
		t.Errorf("base64 round trip failed: %q, %v", p.Data, err)
	}
}

func TestFetchInvalidLocator(t *testing.T) {
	g := NewGateway("http://gateway.invalid", time.Second)
	_, err := g.Fetch(context.Background(), "not-a-cid")
	if !errors.Is(err, ErrFetch) {
		t.Errorf("got %v, want ErrFetch", err)
	}
}

func TestFetchGatewayError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	_, err := g.Fetch(context.Background(), testCID)
	if !errors.Is(err, ErrFetch) {
		t.Errorf("got %v, want ErrFetch", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error %q does not mention status", err)
	}
}

func TestFetchLocatorWithPath(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/report.csv") {
			t.Errorf("path = %s", r.URL.Path)
		}
		// No content type; extension fallback should classify.
		w.Write([]byte("a,b\n1,2\n"))
	})

	p, err := g.Fetch(context.Background(), testCID+"/report.csv")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Kind != model.PayloadCSV {
		t.Errorf("Kind = %s, want csv", p.Kind)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		contentType string
		locator     string
		want        model.PayloadKind
	}{
		{"application/json", "", model.PayloadJSON},
		{"application/json; charset=utf-8", "", model.PayloadJSON},
		{"application/ld+json", "", model.PayloadJSON},
		{"text/csv", "", model.PayloadCSV},
		{"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "", model.PayloadSpreadsheet},
		{"application/vnd.ms-excel", "", model.PayloadSpreadsheet},
		{"", "cid/data.json", model.PayloadJSON},
		{"", "cid/data.csv", model.PayloadCSV},
		{"", "cid/data.XLSX", model.PayloadSpreadsheet},
		{"application/octet-stream", "cid/data.bin", model.PayloadBinary},
		{"", "", model.PayloadBinary},
	}
	for _, tc := range cases {
		if got := Classify(tc.contentType, tc.locator); got != tc.want {
			t.Errorf("Classify(%q, %q) = %s, want %s", tc.contentType, tc.locator, got, tc.want)
		}
	}
}
