package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorax/workflow-core/internal/registry"
)

// nonceSize is the GCM standard nonce size in bytes.
const nonceSize = 12

var (
	ErrNotFound = errors.New("secrets: not found")
	ErrEmptyValue = errors.New("secrets: value cannot be empty")
	ErrInvalidCiphertext = errors.New("secrets: invalid or corrupted ciphertext")
)

// sealed is a value encrypted under a KMS-generated data key: nonce
// prepended to the AES-GCM ciphertext, data key separately wrapped
// by KMS.
type sealed struct {
	ciphertext []byte // nonce || AES-GCM(plaintext)
	encryptedKey []byte
}

// Provider is the reference secrets/integration store. It implements
// the GetSecret/GetIntegration contract NodeContext exposes to node
// implementations, backed by envelope encryption rather than plaintext
// in-memory storage, so a process dump never yields usable secret
// values without also holding KMS decrypt permission.
type Provider struct {
	kms KMSClient

	mu sync.RWMutex
	secrets map[string]sealed
	integrations map[string]sealedIntegration
}

type sealedIntegration struct {
	name, provider string
	token sealed
	metadata map[string]any
}

func NewProvider(kms KMSClient) *Provider {
	return &Provider{
		kms: kms,
		secrets: make(map[string]sealed),
		integrations: make(map[string]sealedIntegration),
	}
}

// PutSecret encrypts value under a fresh KMS data key and stores it under
// name, overwriting any existing secret of that name.
func (p *Provider) PutSecret(ctx context.Context, name, value string) error {
	if value == "" {
		return ErrEmptyValue
	}
	s, err := p.seal(ctx, []byte(value))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.secrets[name] = s
	p.mu.Unlock()
	return nil
}

// GetSecret decrypts and returns the secret stored under name, matching
// registry.NodeContext.GetSecret's signature exactly — no context, no
// error, since a node calling it mid-execution cannot meaningfully retry a
// KMS outage; failures collapse to "not found" and are logged.
func (p *Provider) GetSecret(name string) (string, bool) {
	p.mu.RLock()
	s, ok := p.secrets[name]
	p.mu.RUnlock()
	if !ok {
		return "", false
	}
	plaintext, err := p.unseal(context.Background(), s)
	if err != nil {
		slog.Default().Warn("secrets: decrypt failed, reporting not found", "name", name, "error", err)
		return "", false
	}
	return string(plaintext), true
}

// PutIntegration stores an integration record, encrypting its token the
// same way a bare secret is encrypted. Metadata is not sensitive by
// convention and is kept in the clear, matching registry.Integration.
func (p *Provider) PutIntegration(ctx context.Context, integration registry.Integration) error {
	if integration.ID == "" {
		return fmt.Errorf("secrets: integration ID cannot be empty")
	}
	token, err := p.seal(ctx, []byte(integration.Token))
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.integrations[integration.ID] = sealedIntegration{
		name: integration.Name,
		provider: integration.Provider,
		token: token,
		metadata: integration.Metadata,
	}
	p.mu.Unlock()
	return nil
}

// GetIntegration decrypts and returns the integration stored under id,
// matching registry.NodeContext.GetIntegration's signature.
func (p *Provider) GetIntegration(id string) (registry.Integration, bool) {
	p.mu.RLock()
	rec, ok := p.integrations[id]
	p.mu.RUnlock()
	if !ok {
		return registry.Integration{}, false
	}
	token, err := p.unseal(context.Background(), rec.token)
	if err != nil {
		slog.Default().Warn("secrets: integration token decrypt failed, reporting not found", "id", id, "error", err)
		return registry.Integration{}, false
	}
	return registry.Integration{
		ID: id,
		Name: rec.name,
		Provider: rec.provider,
		Token: string(token),
		Metadata: rec.metadata,
	}, true
}

func (p *Provider) seal(ctx context.Context, plaintext []byte) (sealed, error) {
	plainKey, encryptedKey, err := p.kms.GenerateDataKey(ctx, nil)
	if err != nil {
		return sealed{}, fmt.Errorf("secrets: generate data key: %w", err)
	}
	defer clearKey(plainKey)

	ciphertext, err := encryptAESGCM(plaintext, plainKey)
	if err != nil {
		return sealed{}, fmt.Errorf("secrets: encrypt: %w", err)
	}
	return sealed{ciphertext: ciphertext, encryptedKey: encryptedKey}, nil
}

func (p *Provider) unseal(ctx context.Context, s sealed) ([]byte, error) {
	plainKey, err := p.kms.DecryptDataKey(ctx, s.encryptedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt data key: %w", err)
	}
	defer clearKey(plainKey)

	return decryptAESGCM(s.ciphertext, plainKey)
}

// encryptAESGCM seals plaintext with a random nonce prepended to the
// resulting ciphertext.
func encryptAESGCM(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ciphertext...), nil
}

func decryptAESGCM(encrypted, key []byte) ([]byte, error) {
	if len(encrypted) < nonceSize+1 {
		return nil, ErrInvalidCiphertext
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := encrypted[:nonceSize], encrypted[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
