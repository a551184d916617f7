package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

type cue struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

func TestTypedPubSubRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger, hook := logrustest.NewNullLogger()
	ps := NewTypedPubSub[cue](client, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	got := make(chan cue, 2)
	errCh := make(chan error, 1)
	go func() {
		errCh <- ps.Subscribe(ctx, "lookout:speech", ready, func(c cue) { got <- c })
	}()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never confirmed")
	}

	// raw garbage first, then a valid cue
	if err := client.Publish(ctx, "lookout:speech", "not-json").Err(); err != nil {
		t.Fatalf("publish garbage: %v", err)
	}
	n, err := ps.Publish(ctx, "lookout:speech", cue{Action: "speak", Text: "hello"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 receiver, got %d", n)
	}

	select {
	case c := <-got:
		if c.Action != "speak" || c.Text != "hello" {
			t.Fatalf("unexpected cue %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cue never delivered")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("subscribe returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe did not return after cancel")
	}

	if hook.LastEntry() == nil || hook.LastEntry().Message != "Dropping undecodable pubsub payload" {
		t.Fatalf("expected a warning for the undecodable payload")
	}
}

func TestNewClientFromURL(t *testing.T) {
	if _, err := NewClientFromURL(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClientFromURL(context.Background(), "://bad"); err == nil {
		t.Fatal("expected error for malformed url")
	}

	mr := miniredis.RunT(t)
	client, err := NewClientFromURL(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_ = client.Close()
}
