package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/berfenger/haier2mqtt/internal/core/domain"
	"github.com/berfenger/haier2mqtt/internal/core/port"
	"github.com/berfenger/haier2mqtt/pkg/haier"

	"go.uber.org/zap"
)

const (
	STORE_KEY_ACCOUNT = "account"

	// a token with more validity left than this is not refreshed
	tokenRefreshThreshold = 24 * time.Hour
)

// TokenKeeper owns the account token: it validates it against the cloud,
// refreshes it when needed and persists the result.
type TokenKeeper struct {
	client port.CloudClient
	store  port.BlobStore
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	current domain.AccountToken
}

func NewTokenKeeper(client port.CloudClient, store port.BlobStore, initial domain.AccountToken, logger *zap.Logger) *TokenKeeper {
	return &TokenKeeper{
		client:  client,
		store:   store,
		logger:  logger,
		now:     time.Now,
		current: initial,
	}
}

// Load replaces the configured token with the persisted one, if any.
func (k *TokenKeeper) Load(ctx context.Context) error {
	var stored domain.AccountToken
	found, err := k.store.Load(ctx, STORE_KEY_ACCOUNT, &stored)
	if err != nil {
		return fmt.Errorf("loading account token: %w", err)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if found && stored.Token != "" {
		k.logger.Debug("token: using persisted account token")
		k.current = stored
	}
	k.client.SetToken(k.current.Token)
	return nil
}

func (k *TokenKeeper) Current() domain.AccountToken {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Revalidate refreshes the token when the cloud rejects it or when it expires
// within a day. It reports whether a refresh happened.
func (k *TokenKeeper) Revalidate(ctx context.Context) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	valid := true
	if _, err := k.client.GetUserInfo(ctx); err != nil {
		var clientErr *haier.ClientError
		if !errors.As(err, &clientErr) && !errors.Is(err, haier.ErrEmptyToken) {
			return false, err
		}
		k.logger.Info("token: access token rejected", zap.Error(err))
		valid = false
	}

	now := k.now()
	remaining := time.Duration(k.current.ExpiresAt-now.Unix()) * time.Second
	if valid && remaining > tokenRefreshThreshold {
		return false, nil
	}

	info, err := k.client.RefreshToken(ctx, k.current.RefreshToken)
	if err != nil {
		return false, fmt.Errorf("refreshing token: %w", err)
	}
	next := domain.AccountToken{
		Token:        info.AccountToken,
		RefreshToken: info.RefreshToken,
		ExpiresAt:    now.Unix() + info.ExpiresIn,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = k.current.RefreshToken
	}
	if err := k.store.Save(ctx, STORE_KEY_ACCOUNT, next); err != nil {
		return false, fmt.Errorf("persisting token: %w", err)
	}
	k.current = next
	k.client.SetToken(next.Token)
	k.logger.Info("token: refreshed", zap.Time("expires_at", time.Unix(next.ExpiresAt, 0)))
	return true, nil
}
