package crypto

import (
	"crypto"
	"encoding/asn1"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultProviderName is the name under which Setup registers the built-in provider.
const DefaultProviderName = "builtin"

var (
	// ErrProviderNotRegistered is returned by Lookup when no provider has the requested name.
	ErrProviderNotRegistered = errors.New("signature provider not registered")

	// ErrUnsupportedAlgorithm is returned when a provider cannot handle a signature algorithm.
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")

	// ErrKeyMismatch is returned when the public key type does not match the signature algorithm.
	ErrKeyMismatch = errors.New("public key does not match signature algorithm")
)

// Provider verifies signatures for a set of algorithms.
//
// Verify returns (false, nil) for a well-formed signature that does not
// verify, and a non-nil error when verification could not be attempted
// (unknown algorithm, wrong key type, internal failure).
type Provider interface {
	Name() string
	Verify(sigAlg asn1.ObjectIdentifier, pub crypto.PublicKey, message, signature []byte) (bool, error)
}

// registry is the process-wide provider table.
type registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

var providers = &registry{providers: make(map[string]Provider)}

// Register adds p to the process-wide registry.
// Returns false if a provider with the same name is already registered;
// the existing provider is kept.
func Register(p Provider) bool {
	providers.mu.Lock()
	defer providers.mu.Unlock()

	if _, exists := providers.providers[p.Name()]; exists {
		return false
	}
	providers.providers[p.Name()] = p
	return true
}

// Lookup returns the provider registered under name.
func Lookup(name string) (Provider, error) {
	providers.mu.RLock()
	defer providers.mu.RUnlock()

	p, ok := providers.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotRegistered, name)
	}
	return p, nil
}

// Registered returns the names of all registered providers, sorted.
func Registered() []string {
	providers.mu.RLock()
	defer providers.mu.RUnlock()

	names := make([]string, 0, len(providers.providers))
	for name := range providers.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Setup registers the built-in provider. It is safe to call any number of
// times from any goroutine; only the first call has an effect.
func Setup() {
	Register(DefaultProvider{})
}
