// Package secrets resolves named credentials from the OS keychain, falling
// back to conventional environment variables.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keychain service name credentials are stored under.
const Service = "tierchat"

// Well-known credential names.
const (
	AnthropicAPIKey = "anthropic_api_key"
	SearchAPIKey    = "search_api_key"
)

var envNames = map[string]string{
	AnthropicAPIKey: "ANTHROPIC_API_KEY",
	SearchAPIKey:    "TAVILY_API_KEY",
}

// Known lists the credential names the application reads.
func Known() []string {
	return []string{AnthropicAPIKey, SearchAPIKey}
}

// EnvName returns the environment variable consulted for name.
func EnvName(name string) string {
	if env, ok := envNames[name]; ok {
		return env
	}
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
}

type ErrSecretNotFound struct {
	Key string
	Err error
}

func (e *ErrSecretNotFound) Error() string {
	return fmt.Sprintf("secret %q not found: %s", e.Key, e.Err)
}

func (e *ErrSecretNotFound) Is(target error) bool {
	_, ok := target.(*ErrSecretNotFound)
	return ok
}

func (e *ErrSecretNotFound) Unwrap() error {
	return e.Err
}

type ErrSecretTooLarge struct {
	Key string
	Err error
}

func (e *ErrSecretTooLarge) Error() string {
	return fmt.Sprintf("secret %q is too large: %s", e.Key, e.Err)
}

func (e *ErrSecretTooLarge) Is(target error) bool {
	_, ok := target.(*ErrSecretTooLarge)
	return ok
}

func (e *ErrSecretTooLarge) Unwrap() error {
	return e.Err
}

// Store is a credential backend.
type Store interface {
	Get(key string) (string, error)
	Set(key string, value string) error
	Delete(key string) error
}

// KeyringStore keeps credentials in the OS keychain.
type KeyringStore struct {
	service string
}

func NewKeyringStore() *KeyringStore {
	return &KeyringStore{service: Service}
}

func (k *KeyringStore) Get(key string) (string, error) {
	secret, err := keyring.Get(k.service, key)
	if err != nil {
		return "", toError(key, err)
	}
	return secret, nil
}

func (k *KeyringStore) Set(key string, value string) error {
	if err := keyring.Set(k.service, key, value); err != nil {
		return toError(key, err)
	}
	return nil
}

func (k *KeyringStore) Delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil {
		return toError(key, err)
	}
	return nil
}

func toError(key string, err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return &ErrSecretNotFound{Key: key, Err: err}
	}
	if errors.Is(err, keyring.ErrSetDataTooBig) {
		return &ErrSecretTooLarge{Key: key, Err: err}
	}
	return err
}

var _ Store = (*KeyringStore)(nil)

// Origin says where a resolved credential came from.
type Origin string

const (
	OriginNone     Origin = ""
	OriginKeychain Origin = "keychain"
	OriginEnv      Origin = "env"
)

// Resolver reads credentials from a Store first, then the environment.
// Every lookup hits the backends, so a credential added mid-session is seen
// on the next call.
type Resolver struct {
	store  Store
	getenv func(string) string
}

// NewResolver returns a resolver over store. A nil store means env only.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, getenv: os.Getenv}
}

// Resolve returns the credential value and where it was found.
func (r *Resolver) Resolve(name string) (string, Origin) {
	if r.store != nil {
		if v, err := r.store.Get(name); err == nil && v != "" {
			return v, OriginKeychain
		}
	}
	if v := strings.TrimSpace(r.getenv(EnvName(name))); v != "" {
		return v, OriginEnv
	}
	return "", OriginNone
}

// Lookup returns the credential and whether it is present.
func (r *Resolver) Lookup(name string) (string, bool) {
	v, origin := r.Resolve(name)
	return v, origin != OriginNone
}

// Get is Lookup under the provider contract's name.
func (r *Resolver) Get(name string) (string, bool) {
	return r.Lookup(name)
}

// Has reports whether the credential is present anywhere.
func (r *Resolver) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Set stores value in the keychain.
func (r *Resolver) Set(name, value string) error {
	if r.store == nil {
		return fmt.Errorf("no secret store available; set %s instead", EnvName(name))
	}
	return r.store.Set(name, strings.TrimSpace(value))
}

// Delete removes name from the keychain. Environment values are untouched.
func (r *Resolver) Delete(name string) error {
	if r.store == nil {
		return nil
	}
	err := r.store.Delete(name)
	var notFound *ErrSecretNotFound
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}
