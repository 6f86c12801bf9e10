package backend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"tally/internal/config"
	"tally/internal/core"
	"tally/internal/sheets"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", DataDirectory: "d"}
	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != "x.db" || got.DataDirectory != "d" {
		t.Fatalf("got %+v", got)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "excel"}); err == nil {
		t.Fatal("expected invalid backend error")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected nil config error")
	}
}

func TestCreateBackend(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  Config
	}{
		{"memory", Config{Type: MemoryBackend, DataDirectory: t.TempDir()}},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "tally.db")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.CreateBackend(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("CreateBackend: %v", err)
			}
			if res.Cleanup != nil {
				defer res.Cleanup()
			}
			doc := core.Document{Transactions: []core.Transaction{{ID: "1", Date: "01/01/2025"}}}
			if err := res.Store.Save(ctx, doc); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := res.Store.Load(ctx)
			if err != nil || len(got.Transactions) != 1 {
				t.Fatalf("Load = %+v, %v", got, err)
			}
		})
	}
}

func TestCreateBackendErrors(t *testing.T) {
	f := NewFactory(nil)
	ctx := context.Background()
	if _, err := f.CreateBackend(ctx, Config{Type: "excel"}); err == nil {
		t.Fatal("expected unsupported type error")
	}
	_, err := f.CreateBackend(ctx, Config{Type: WebAppBackend})
	if !errors.Is(err, sheets.ErrNotConfigured) {
		t.Fatalf("webapp without endpoint: %v", err)
	}
}
