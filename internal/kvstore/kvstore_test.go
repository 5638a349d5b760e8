package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"gasflow/internal/config"
)

type sampleRecord struct {
	Safe  decimal.Decimal `json:"safe"`
	Label string          `json:"label"`
}

func backends(t *testing.T) map[string]func() Backend {
	t.Helper()
	dir := t.TempDir()
	return map[string]func() Backend{
		"memory": func() Backend { return NewMemory() },
		"file": func() Backend {
			b, err := OpenFile(filepath.Join(dir, "nested", "state.yaml"))
			if err != nil {
				t.Fatalf("open file backend: %v", err)
			}
			return b
		},
		"sqlite": func() Backend {
			b, err := OpenSQLite(context.Background(), filepath.Join(dir, "state.db"))
			if err != nil {
				t.Fatalf("open sqlite backend: %v", err)
			}
			return b
		},
	}
}

func TestBackendsRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b := open()
			defer b.Close()

			if _, err := b.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("缺失键应返回 ErrNotFound, 实际 %v", err)
			}
			if err := b.Set(ctx, "a", []byte(`"x"`)); err != nil {
				t.Fatalf("set: %v", err)
			}
			if err := b.Set(ctx, "a", []byte(`"y"`)); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := b.Get(ctx, "a")
			if err != nil || string(got) != `"y"` {
				t.Fatalf("get: %q %v", got, err)
			}
			keys, err := b.Keys(ctx)
			if err != nil || len(keys) != 1 || keys[0] != "a" {
				t.Fatalf("keys: %v %v", keys, err)
			}
			if err := b.Delete(ctx, "a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := b.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("删除后应返回 ErrNotFound, 实际 %v", err)
			}
		})
	}
}

func TestValueDefaultsAndDecimalPrecision(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()

	v := NewValue(b, "rec", sampleRecord{Label: "default"})
	got, err := v.Get(ctx)
	if err != nil || got.Label != "default" {
		t.Fatalf("缺失时应返回默认值: %+v %v", got, err)
	}
	if _, found, _ := v.Lookup(ctx); found {
		t.Fatal("缺失键 Lookup 应返回 found=false")
	}

	want := sampleRecord{Safe: decimal.RequireFromString("12.3456789"), Label: "x"}
	if err := v.Set(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err = v.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Safe.Equal(want.Safe) || got.Label != "x" {
		t.Fatalf("往返不一致: %+v", got)
	}

	if err := v.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	got, _ = v.Get(ctx)
	if got.Label != "default" {
		t.Fatalf("Reset 后应恢复默认: %+v", got)
	}
}

func TestValueCorruptReturnsDefault(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	_ = b.Set(ctx, "n", []byte("not-json"))

	v := NewValue(b, "n", 25)
	got, err := v.Get(ctx)
	if err == nil {
		t.Fatal("损坏的值应返回错误")
	}
	if got != 25 {
		t.Fatalf("损坏时应返回默认值, 实际 %d", got)
	}
}

func TestFileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.yaml")

	b, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewValue(b, "theme", "light").Set(ctx, "dark"); err != nil {
		t.Fatal(err)
	}
	_ = b.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("文件应已写入: %v", err)
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewValue(reopened, "theme", "light").Get(ctx)
	if err != nil || got != "dark" {
		t.Fatalf("重新打开后应读到 dark: %q %v", got, err)
	}
}

func TestClosedMemory(t *testing.T) {
	b := NewMemory()
	_ = b.Close()
	if err := b.Set(context.Background(), "k", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("关闭后应返回 ErrClosed, 实际 %v", err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, config.StoreConfig{Backend: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*Memory); !ok {
		t.Fatalf("应为 Memory, 实际 %T", b)
	}

	b, err = Open(ctx, config.StoreConfig{Backend: "file", Path: filepath.Join(t.TempDir(), "s.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := b.(*File); !ok {
		t.Fatalf("应为 File, 实际 %T", b)
	}

	if _, err := Open(ctx, config.StoreConfig{Backend: "etcd"}); err == nil {
		t.Fatal("未知后端应报错")
	}
}
