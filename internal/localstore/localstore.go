// Package localstore is the offline-first key/value persistence for one
// operator's contacts and labels.
package localstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crmoverlay/api/internal/store"
)

// Store persists whole contact and label sets per operator. A missing key
// loads as an empty slice with no error.
type Store interface {
	LoadContacts(ctx context.Context, operator string) ([]store.Contact, error)
	SaveContacts(ctx context.Context, operator string, contacts []store.Contact) error
	LoadLabels(ctx context.Context, operator string) ([]store.Label, error)
	SaveLabels(ctx context.Context, operator string, labels []store.Label) error
	Close() error
}

const (
	contactsKind = "contacts"
	labelsKind   = "labels"
)

func key(operator, kind string) string {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		operator = "default"
	}
	return "overlay:" + operator + ":" + kind
}

// Open picks the backend named by backend ("badger" or "redis").
func Open(backend, badgerDir, redisURL string, logger *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "badger":
		return OpenBadger(badgerDir, logger)
	case "redis":
		return NewRedis(redisURL)
	default:
		return nil, fmt.Errorf("unknown local store backend %q", backend)
	}
}
