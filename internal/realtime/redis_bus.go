// Package realtime relays store change events between service instances over
// Redis pub/sub, so a subscription on one instance refreshes when another
// instance commits.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"silent-auction/utils"
)

// ChangeEvent is the payload published for every committed collection
type ChangeEvent struct {
	Origin     string    `json:"origin"`
	Collection string    `json:"collection"`
	At         time.Time `json:"at"`
}

// RedisBus publishes change events and forwards events from other instances
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	origin  string
}

// NewRedisBus connects to addr and verifies the connection with a ping
func NewRedisBus(ctx context.Context, addr, channel string) (*RedisBus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("realtime: missing redis address")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "auction-changes"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("realtime: redis ping: %w", err)
	}

	return &RedisBus{rdb: rdb, channel: channel, origin: utils.GenerateID()}, nil
}

// Origin identifies this process in published events
func (b *RedisBus) Origin() string { return b.origin }

// Publish announces that collection changed
func (b *RedisBus) Publish(ctx context.Context, collection string) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("realtime: bus not initialized")
	}
	raw, err := json.Marshal(ChangeEvent{Origin: b.origin, Collection: collection, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls onChange for every
// event published by another instance, until ctx is done.
func (b *RedisBus) StartForwarder(ctx context.Context, onChange func(collection string)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("realtime: bus not initialized")
	}
	if onChange == nil {
		return fmt.Errorf("realtime: onChange callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("realtime: redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					utils.Warn("realtime: bad change payload", map[string]any{"error": err.Error()})
					continue
				}
				if ev.Origin == b.origin || ev.Collection == "" {
					continue
				}
				onChange(ev.Collection)
			}
		}
	}()

	return nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
