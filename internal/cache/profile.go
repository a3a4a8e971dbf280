package cache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Profiles persists per-device identity across process restarts: a stable
// opaque user id and the last chosen nickname, keyed by an opaque device key
// supplied by the caller.
type Profiles struct {
	kv KV
}

// NewProfiles creates a profile store over kv.
func NewProfiles(kv KV) *Profiles {
	return &Profiles{kv: kv}
}

func (p *Profiles) userKey(deviceKey string) string {
	return fmt.Sprintf("device:%s:userId", deviceKey)
}

func (p *Profiles) nickKey(deviceKey string) string {
	return fmt.Sprintf("device:%s:nickname", deviceKey)
}

// EnsureUserID returns the device's stable user id, generating and persisting
// one on first use.
func (p *Profiles) EnsureUserID(ctx context.Context, deviceKey string) (string, error) {
	id, ok, err := p.kv.Get(ctx, p.userKey(deviceKey))
	if err != nil {
		return "", err
	}
	if ok {
		return id, nil
	}
	id = "user_" + uuid.New().String()[:12]
	if err := p.kv.Set(ctx, p.userKey(deviceKey), id); err != nil {
		return "", err
	}
	return id, nil
}

// Nickname returns the stored nickname for the device, if any.
func (p *Profiles) Nickname(ctx context.Context, deviceKey string) (string, bool, error) {
	return p.kv.Get(ctx, p.nickKey(deviceKey))
}

// SetNickname stores the device's nickname.
func (p *Profiles) SetNickname(ctx context.Context, deviceKey, nickname string) error {
	return p.kv.Set(ctx, p.nickKey(deviceKey), nickname)
}
