package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

// Vault reads and writes credential pairs on top of a SecureStore.
// Every key is derived from the role, so one role's tokens are never read
// while operating on the other.
type Vault struct {
	store SecureStore
}

// NewVault wraps a SecureStore.
func NewVault(s SecureStore) *Vault {
	return &Vault{store: s}
}

// Store exposes the underlying SecureStore.
func (v *Vault) Store() SecureStore {
	return v.store
}

// Pair returns whatever part of the role's credential pair is stored.
func (v *Vault) Pair(ctx context.Context, role domain.Role) (domain.CredentialPair, error) {
	var pair domain.CredentialPair
	if !role.Valid() {
		return pair, nil
	}
	access, _, err := v.store.Get(ctx, domain.AccessKey(role))
	if err != nil {
		return pair, fmt.Errorf("failed to read access token: %w", err)
	}
	refresh, _, err := v.store.Get(ctx, domain.RefreshKey(role))
	if err != nil {
		return pair, fmt.Errorf("failed to read refresh token: %w", err)
	}
	pair.AccessToken = access
	pair.RefreshToken = refresh
	return pair, nil
}

// RefreshToken returns the role's refresh token, or "" when none is stored.
func (v *Vault) RefreshToken(ctx context.Context, role domain.Role) (string, error) {
	if !role.Valid() {
		return "", nil
	}
	refresh, _, err := v.store.Get(ctx, domain.RefreshKey(role))
	if err != nil {
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}
	return refresh, nil
}

// SaveLogin stores a freshly issued pair for the role.
func (v *Vault) SaveLogin(ctx context.Context, role domain.Role, access, refresh string) error {
	if !role.Valid() {
		return fmt.Errorf("cannot store credentials for role %q", role)
	}
	if err := v.store.Set(ctx, domain.AccessKey(role), access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if err := v.store.Set(ctx, domain.RefreshKey(role), refresh); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

// SaveRefreshed persists a refresh response. The refresh token is only
// overwritten when the backend rotated it.
func (v *Vault) SaveRefreshed(ctx context.Context, role domain.Role, resp domain.TokenResponse) error {
	if !role.Valid() {
		return fmt.Errorf("cannot store credentials for role %q", role)
	}
	if err := v.store.Set(ctx, domain.AccessKey(role), resp.Access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if resp.Refresh != "" {
		if err := v.store.Set(ctx, domain.RefreshKey(role), resp.Refresh); err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}
	}
	return nil
}

// ClearRole deletes both of the role's tokens. Both deletes are attempted.
func (v *Vault) ClearRole(ctx context.Context, role domain.Role) error {
	if !role.Valid() {
		return nil
	}
	return v.deleteKeys(ctx, domain.AccessKey(role), domain.RefreshKey(role))
}

// ClearAll deletes the credential pairs of every role.
func (v *Vault) ClearAll(ctx context.Context) error {
	return v.deleteKeys(ctx, domain.CredentialKeys...)
}

func (v *Vault) deleteKeys(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := v.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// ScanRole picks the role to start in: the first role, in priority order,
// with a stored refresh token.
func (v *Vault) ScanRole(ctx context.Context) (domain.Role, error) {
	for _, role := range domain.Roles {
		refresh, err := v.RefreshToken(ctx, role)
		if err != nil {
			return domain.RoleNone, err
		}
		if refresh != "" {
			return role, nil
		}
	}
	return domain.RoleNone, nil
}
