// Package redisbus implements the Bus interface over Redis pub/sub.
//
// Subjects map 1:1 to Redis channels. Tenant isolation is enforced twice: the
// Redis deployment carries per-tenant ACL users restricted to their channel
// prefix (`tenant.{id}.*`), and bus.Scoped refuses out-of-prefix subjects
// before a command is ever issued.
package redisbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/fleetsign/internal/bus"
)

// Config holds the Redis connection settings. Username/Password carry the
// per-tenant ACL credentials on agent-side connections; the service connects
// with an unrestricted user.
type Config struct {
	Addr     string
	Username string
	Password string
	DB       int
}

type Bus struct {
	client *redis.Client
}

const subBuffer = 64

// New connects and pings the Redis server.
func New(cfg Config) (*Bus, error) {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisbus: ping failed: %w", err)
	}
	return &Bus{client: client}, nil
}

func (b *Bus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := b.client.Publish(ctx, subject, payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish %s: %w", subject, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, subject string) (bus.Subscription, error) {
	ps := b.client.Subscribe(ctx, subject)
	// Receive forces the SUBSCRIBE round trip so a bad subject fails here,
	// not silently in the pump goroutine.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisbus: subscribe %s: %w", subject, err)
	}

	sub := &subscription{ps: ps, ch: make(chan bus.Message, subBuffer)}
	go sub.pump()
	return sub, nil
}

func (b *Bus) Close() error {
	return b.client.Close()
}

type subscription struct {
	ps *redis.PubSub
	ch chan bus.Message
}

func (s *subscription) pump() {
	defer close(s.ch)
	for msg := range s.ps.Channel() {
		s.ch <- bus.Message{Subject: msg.Channel, Payload: []byte(msg.Payload)}
	}
}

func (s *subscription) C() <-chan bus.Message { return s.ch }

func (s *subscription) Unsubscribe() error {
	return s.ps.Close()
}
