package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Secret names in the secrets file.
const (
	secretOpenRouterKey = "openrouter_api_key"
	secretEngineKey     = "engine_api_key"
	secretRedisPassword = "redis_password"
	secretAMQPURL       = "amqp_url"
	secretJWT           = "jwt_secret"
	secretAPIToken      = "api_token"
)

// SecretsFilePath returns the location of the secrets file.
func SecretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

// secretStore reads and writes named secrets. It stands in for an OS
// keychain.
type secretStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

var errSecretNotFound = errors.New("secret not found")

// fileSecrets keeps secrets in a 0600 JSON object.
type fileSecrets struct {
	path string
}

func (f fileSecrets) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func (f fileSecrets) Get(name string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		if os.IsNotExist(err) {
			return "", errSecretNotFound
		}
		return "", err
	}
	v, ok := secrets[name]
	if !ok || v == "" {
		return "", errSecretNotFound
	}
	return v, nil
}

func (f fileSecrets) Set(name, value string) error {
	secrets, err := f.read()
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[name] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

// GetAPIToken returns the admin bearer token, generating and persisting a
// random one on first use.
func GetAPIToken() (string, error) {
	return getOrCreateSecret(fileSecrets{path: SecretsFilePath()}, secretAPIToken)
}

// GetJWTSecret returns the session signing key from ADVISOR_JWT_SECRET or
// the secrets file, generating one on first use.
func GetJWTSecret() ([]byte, error) {
	if v := os.Getenv("ADVISOR_JWT_SECRET"); v != "" {
		return []byte(v), nil
	}
	s, err := getOrCreateSecret(fileSecrets{path: SecretsFilePath()}, secretJWT)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func getOrCreateSecret(store secretStore, name string) (string, error) {
	v, err := store.Get(name)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, errSecretNotFound) {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating %s: %w", name, err)
	}
	v = hex.EncodeToString(buf)
	if err := store.Set(name, v); err != nil {
		return "", fmt.Errorf("storing %s: %w", name, err)
	}
	return v, nil
}
