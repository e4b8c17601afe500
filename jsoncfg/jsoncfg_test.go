package jsoncfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Name    string   `json:"name"`
	Timeout Duration `json:"timeout"`
}

func TestSaveAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	want := testConfig{Name: "tunnel", Timeout: Duration(90 * time.Second)}
	if err := Save(path, want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile failed: %v", err)
	}
	if wantText := "{\n    \"name\": \"tunnel\",\n    \"timeout\": \"1m30s\"\n}\n"; string(data) != wantText {
		t.Errorf("saved %q, want %q", data, wantText)
	}

	var got testConfig
	if err = Open(path, &got); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got != want {
		t.Errorf("Open() = %+v, want %+v", got, want)
	}
}

func TestOpenRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"name": "x", "bogus": 1}`), 0o644); err != nil {
		t.Fatalf("os.WriteFile failed: %v", err)
	}

	var c testConfig
	if err := Open(path, &c); err == nil {
		t.Error("Open() succeeded with unknown field")
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("250ms")); err != nil {
		t.Fatalf("d.UnmarshalText failed: %v", err)
	}
	if d.Value() != 250*time.Millisecond {
		t.Errorf("d.Value() = %v, want 250ms", d.Value())
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Error("d.UnmarshalText(\"soon\") succeeded")
	}
}
