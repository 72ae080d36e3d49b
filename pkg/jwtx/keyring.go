package jwtx

import (
	"errors"
	"sync"
)

// ErrNoSigner indicates no signer is registered for the requested client.
var ErrNoSigner = errors.New("jwtx: no signer for client")

// Keyring holds one signer per client. There is no default or shared key;
// a lookup for an unregistered client always fails. Safe for concurrent use.
type Keyring struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

func NewKeyring() *Keyring {
	return &Keyring{signers: make(map[string]Signer)}
}

// Register installs or replaces the signer for a client.
func (k *Keyring) Register(clientID string, s Signer) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.signers[clientID] = s
}

// SignerFor returns the signer owned by clientID, or ErrNoSigner.
func (k *Keyring) SignerFor(clientID string) (Signer, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	s, ok := k.signers[clientID]
	if !ok {
		return nil, ErrNoSigner
	}
	return s, nil
}

// Remove drops a client's signer, e.g. when the client is deleted.
func (k *Keyring) Remove(clientID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.signers, clientID)
}
