package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crmoverlay/api/internal/store"
)

// Redis keeps the sets in a shared Redis so several overlay processes for
// one operator see the same local copy.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and pings redisURL.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) LoadContacts(ctx context.Context, operator string) ([]store.Contact, error) {
	contacts := []store.Contact{}
	if err := r.get(ctx, key(operator, contactsKind), &contacts); err != nil {
		return []store.Contact{}, fmt.Errorf("load contacts: %w", err)
	}
	return contacts, nil
}

func (r *Redis) SaveContacts(ctx context.Context, operator string, contacts []store.Contact) error {
	if err := r.set(ctx, key(operator, contactsKind), contacts); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}
	return nil
}

func (r *Redis) LoadLabels(ctx context.Context, operator string) ([]store.Label, error) {
	labels := []store.Label{}
	if err := r.get(ctx, key(operator, labelsKind), &labels); err != nil {
		return []store.Label{}, fmt.Errorf("load labels: %w", err)
	}
	return labels, nil
}

func (r *Redis) SaveLabels(ctx context.Context, operator string, labels []store.Label) error {
	if err := r.set(ctx, key(operator, labelsKind), labels); err != nil {
		return fmt.Errorf("save labels: %w", err)
	}
	return nil
}

func (r *Redis) get(ctx context.Context, k string, dest any) error {
	data, err := r.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *Redis) set(ctx context.Context, k string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return r.client.Set(ctx, k, data, 0).Err()
}
