package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if _, err := NewRedisClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}
