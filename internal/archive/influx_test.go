package archive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

func TestNewInfluxRequiresConfig(t *testing.T) {
	if _, err := NewInflux(InfluxConfig{URL: "http://localhost:8086"}); err == nil {
		t.Fatal("expected error for incomplete config")
	}
}

func TestArchiveWritesLineProtocol(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/write" {
			b, _ := io.ReadAll(r.Body)
			body = string(b)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a, err := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "b"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer a.Close()

	e := dam.Entity{ID: "1", Status: dam.StatusWarning}
	r := dam.Reading{ID: "r1", Timestamp: time.Unix(1700000000, 0), WaterLevel: 860000, FlowRate: 110}

	if err := a.Archive(context.Background(), e, r); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(body, "dam_reading,dam_id=1,status=warning ") {
		t.Fatalf("unexpected line protocol: %q", body)
	}
	if !strings.Contains(body, "water_level=860000") {
		t.Fatalf("water level missing: %q", body)
	}
}
