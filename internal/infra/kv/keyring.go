package kv

import (
	"context"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"

	"github.com/bryanwahyu/threat-analyzer/internal/domain/storage"
)

// Keyring stores values in the OS keyring under one service name, one
// secret per key. Keyrings limit secret size, so it suits the identity
// partition better than large analysis histories.
type Keyring struct {
	service string
}

func NewKeyring(service string) *Keyring {
	if service == "" {
		service = "threat-analyzer"
	}
	return &Keyring{service: service}
}

func (k *Keyring) Get(_ context.Context, key string) ([]byte, error) {
	v, err := keyring.Get(k.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "keyring get %s", key)
	}
	return []byte(v), nil
}

func (k *Keyring) Set(_ context.Context, key string, value []byte) error {
	if err := keyring.Set(k.service, key, string(value)); err != nil {
		return errors.Wrapf(err, "keyring set %s", key)
	}
	return nil
}

func (k *Keyring) Remove(_ context.Context, key string) error {
	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrapf(err, "keyring delete %s", key)
	}
	return nil
}
