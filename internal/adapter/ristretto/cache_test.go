package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/tracefold/workbench/internal/port/cache"
)

var _ cache.Cache = (*Cache)(nil)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "main.go", []byte("package main\n"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.c.Wait() // ristretto admits asynchronously

	got, ok, err := c.Get(ctx, "main.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(got) != "package main\n" {
		t.Errorf("Get = %q", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := newTestCache(t)

	_, ok, err := c.Get(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "gone.txt", []byte("soon"), time.Minute)
	c.c.Wait()

	if err := c.Delete(ctx, "gone.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "gone.txt"); ok {
		t.Fatal("expected miss after Delete")
	}

	// Deleting an absent key is not an error.
	if err := c.Delete(ctx, "never-written"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

func TestOverwrite(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v1"), time.Minute)
	c.c.Wait()
	_ = c.Set(ctx, "k", []byte("v2"), time.Minute)
	c.c.Wait()

	got, ok, _ := c.Get(ctx, "k")
	if !ok || string(got) != "v2" {
		t.Fatalf("Get after overwrite = %q, %v", got, ok)
	}
}
