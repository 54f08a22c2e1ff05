package assets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestReadAll_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.geojson")
	if err := os.WriteFile(path, []byte(`{"type":"FeatureCollection","features":[]}`), 0644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader()
	for _, loc := range []string{path, "file://" + path} {
		data, err := l.ReadAll(context.Background(), loc)
		if err != nil {
			t.Fatalf("ReadAll(%q): %v", loc, err)
		}
		if len(data) == 0 {
			t.Errorf("ReadAll(%q) returned no data", loc)
		}
	}
}

func TestReadAll_MissingFile(t *testing.T) {
	l := NewLoader()
	if _, err := l.ReadAll(context.Background(), filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestReadAll_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/forecast.json" {
			http.NotFound(w, r)
			return
		}
		if ua := r.Header.Get("User-Agent"); ua == "" {
			t.Error("expected user agent header")
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	l := NewLoader()
	data, err := l.ReadAll(context.Background(), srv.URL+"/forecast.json")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("body = %q, want []", data)
	}

	if _, err := l.ReadAll(context.Background(), srv.URL+"/missing.json"); err == nil {
		t.Error("expected error for 404")
	}
}
