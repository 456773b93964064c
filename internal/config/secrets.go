package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// ResolveToken fills the WhatsApp token from the OS keyring when neither the
// settings file nor the environment provided one.
func (s *Settings) ResolveToken() {
	if s.WhatsApp.Token != "" {
		return
	}
	token, err := keyring.Get(KeyringService, KeyringUser)
	if err != nil {
		slog.Debug(MsgTokenMissing,
			LogKeyComponent, CompConfig,
			LogKeyError, err,
		)
		return
	}
	s.WhatsApp.Token = token
}

// StoreToken saves the WhatsApp token in the OS keyring.
func StoreToken(token string) error {
	if err := keyring.Set(KeyringService, KeyringUser, token); err != nil {
		return fmt.Errorf("%s: %w", ErrKeyringSave, err)
	}
	slog.Info(MsgTokenStored, LogKeyComponent, CompConfig)
	return nil
}
