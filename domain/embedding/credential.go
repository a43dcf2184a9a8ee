package embedding

import "sync"

// Credential is an opaque secret handed to a backend on each call.
type Credential struct {
	key string
}

// NewCredential creates a Credential.
func NewCredential(key string) Credential {
	return Credential{key: key}
}

// Key returns the secret value.
func (c Credential) Key() string { return c.key }

// IsZero reports whether the credential carries no secret.
func (c Credential) IsZero() bool { return c.key == "" }

// String masks the secret.
func (c Credential) String() string {
	if len(c.key) <= 4 {
		return "****"
	}
	return "****" + c.key[len(c.key)-4:]
}

// CredentialPool rotates through the credentials available for one backend.
// It is safe for concurrent use.
type CredentialPool struct {
	credentials []Credential
	current     int
	mu          sync.Mutex
}

// NewCredentialPool creates a pool from the given keys. Empty keys are
// skipped; a pool without keys holds one anonymous credential so that
// backends that need no secret still get one attempt.
func NewCredentialPool(keys ...string) *CredentialPool {
	credentials := make([]Credential, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			credentials = append(credentials, NewCredential(k))
		}
	}
	if len(credentials) == 0 {
		credentials = append(credentials, Credential{})
	}
	return &CredentialPool{credentials: credentials}
}

// Size returns the number of credentials in the pool.
func (p *CredentialPool) Size() int {
	return len(p.credentials)
}

// Current returns the credential in use.
func (p *CredentialPool) Current() Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.credentials[p.current]
}

// Next advances the pool and returns the new current credential.
func (p *CredentialPool) Next() Credential {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = (p.current + 1) % len(p.credentials)
	return p.credentials[p.current]
}
