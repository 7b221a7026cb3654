package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Wyydra/ya-client/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// LoadOrCreateKeyPair reads the key pair at path, or makes one with
// generate and stores it there readable by the owner only.
func LoadOrCreateKeyPair(path string, generate func() (domain.KeyPair, error)) (domain.KeyPair, bool, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var kp domain.KeyPair
		if err := yaml.Unmarshal(data, &kp); err != nil {
			return domain.KeyPair{}, false, fmt.Errorf("parse %s: %w", path, err)
		}
		if kp.PublicKey == "" || kp.PrivateKey == "" {
			return domain.KeyPair{}, false, fmt.Errorf("%s: incomplete key pair", path)
		}
		return kp, false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return domain.KeyPair{}, false, err
	}

	kp, err := generate()
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	out, err := yaml.Marshal(kp)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return domain.KeyPair{}, false, err
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return domain.KeyPair{}, false, err
	}
	return kp, true, nil
}
