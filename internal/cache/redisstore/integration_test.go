//go:build integration

package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/prefeitura-rio/api-dados-rio/internal/cache"
	"github.com/prefeitura-rio/api-dados-rio/internal/cache/redisstore"
	"github.com/prefeitura-rio/api-dados-rio/internal/snapshot"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return host + ":" + port.Port()
}

func TestIntegration_CodedStore(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	for _, codec := range []cache.Codec{cache.JSON{}, cache.Msgpack{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			rc, err := redisstore.New(ctx, addr)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			s := cache.New(rc, codec, nil)
			t.Cleanup(func() { _ = s.Close() })

			kv := map[string]any{
				"eventos_2022_06_09": map[string]any{"eventos": []any{map[string]any{"id": "a"}}},
				"eventos_2022_06_10": map[string]any{"eventos": []any{}},
			}
			if err := s.SetMany(ctx, kv, cache.For(time.Second)); err != nil {
				t.Fatalf("SetMany: %v", err)
			}
			got, err := s.GetMany(ctx, []string{"eventos_2022_06_09", "eventos_2022_06_10", "eventos_2022_06_11"})
			if err != nil {
				t.Fatalf("GetMany: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("GetMany len = %d, want 2", len(got))
			}

			if err := s.Set(ctx, "pops_backup", []any{"x"}, cache.Forever); err != nil {
				t.Fatalf("Set forever: %v", err)
			}

			time.Sleep(1500 * time.Millisecond)
			if ok, _ := s.Contains(ctx, "eventos_2022_06_09"); ok {
				t.Fatal("short-lived bucket did not expire")
			}
			if ok, _ := s.Contains(ctx, "pops_backup"); !ok {
				t.Fatal("forever key expired")
			}
			if err := s.Delete(ctx, "pops_backup"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
		})
	}
}

func TestIntegration_SnapshotBackup(t *testing.T) {
	addr := startRedis(t)
	ctx := context.Background()

	rc, err := redisstore.NewFromURL(ctx, "redis://"+addr+"/1")
	if err != nil {
		t.Fatalf("NewFromURL: %v", err)
	}
	s := cache.New(rc, cache.JSON{}, nil)
	t.Cleanup(func() { _ = s.Close() })

	spec := snapshot.Spec{
		Group: "clima_alagamento", Name: "alagamento_15min",
		DataKey: "data_alagamento_recente_comando", UpdateKey: "data_update_alagamento_recente_comando",
		Backup: true,
	}
	if err := s.Set(ctx, spec.DataKey, []any{map[string]any{"id_h3": "88a8a06a1bfffff"}}, cache.Forever); err != nil {
		t.Fatalf("seed data: %v", err)
	}
	if err := s.Set(ctx, spec.UpdateKey, []any{map[string]any{"last_update": "2024-02-01T10:08:00-03:00"}}, cache.Forever); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	r := snapshot.NewReader(s, s)
	first, err := r.Read(ctx, spec)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if first.Source != snapshot.SourceStore {
		t.Fatalf("source = %s, want store", first.Source)
	}

	if err := s.Delete(ctx, spec.DataKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	second, err := r.Read(ctx, spec)
	if err != nil {
		t.Fatalf("Read after delete: %v", err)
	}
	if second.Source != snapshot.SourceBackup || second.Warning != snapshot.BackupWarning {
		t.Fatalf("got %+v, want backup with warning", second)
	}
	if second.LastUpdate != first.LastUpdate {
		t.Fatalf("backup last update = %q, want %q", second.LastUpdate, first.LastUpdate)
	}
}
