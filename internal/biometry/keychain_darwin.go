//go:build darwin && cgo

package biometry

import (
	"context"
	"errors"
	"fmt"

	keychain "github.com/keybase/go-keychain"
)

const keychainLabel = "Nostr identity credential"

// Keychain seals secrets as device-local generic passwords in the macOS
// Keychain and releases them only after a Touch ID prompt succeeds.
//
// Items are never synchronised to iCloud and are readable only while the
// device is unlocked.
type Keychain struct {
	service string
}

// NewKeychain returns a Keychain platform storing items under service.
func NewKeychain(service string) *Keychain {
	return &Keychain{service: service}
}

func (k *Keychain) IsSupported(context.Context) bool {
	return biometryAvailable()
}

func (k *Keychain) item(account string, secret []byte) keychain.Item {
	item := keychain.NewGenericPassword(k.service, account, keychainLabel, secret, "")
	item.SetSynchronizable(keychain.SynchronizableNo)
	item.SetAccessible(keychain.AccessibleWhenUnlockedThisDeviceOnly)
	return item
}

func (k *Keychain) Save(_ context.Context, account string, secret []byte) error {
	if err := keychain.AddItem(k.item(account, secret)); err != nil {
		if errors.Is(err, keychain.ErrorDuplicateItem) {
			return ErrDuplicate
		}
		return fmt.Errorf("add keychain item: %w", err)
	}
	return nil
}

func (k *Keychain) Replace(ctx context.Context, account string, secret []byte) error {
	err := k.Save(ctx, account, secret)
	if !errors.Is(err, ErrDuplicate) {
		return err
	}

	query := keychain.NewGenericPassword(k.service, account, "", nil, "")
	update := keychain.NewItem()
	update.SetData(secret)
	if err := keychain.UpdateItem(query, update); err != nil {
		return fmt.Errorf("update keychain item: %w", err)
	}
	return nil
}

func (k *Keychain) Retrieve(ctx context.Context, account, reason string) ([]byte, error) {
	if err := authenticate(ctx, reason); err != nil {
		return nil, err
	}

	data, err := keychain.GetGenericPassword(k.service, account, "", "")
	if err != nil {
		return nil, fmt.Errorf("read keychain item: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

func (k *Keychain) Delete(_ context.Context, account string) error {
	query := keychain.NewGenericPassword(k.service, account, "", nil, "")
	if err := keychain.DeleteItem(query); err != nil && !errors.Is(err, keychain.ErrorItemNotFound) {
		return fmt.Errorf("delete keychain item: %w", err)
	}
	return nil
}
