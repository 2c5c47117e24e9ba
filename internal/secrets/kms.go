// Package secrets implements the reference secrets/integration
// provider: an envelope-encrypted in-memory store exposed through the
// GetSecret/GetIntegration contract consumed by registry.NodeContext.
// It has no HTTP API, no repository, no audit log, and no OAuth
// refresh flow — a full credential service is an external collaborator.
package secrets

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

const (
	// dataKeySize is the AES-256 data key size in bytes.
	dataKeySize = 32
	// dataKeyCacheTTL bounds how long a data key is reused before a
	// fresh GenerateDataKey call.
	dataKeyCacheTTL = 5 * time.Minute
)

var ErrInvalidKeyID = fmt.Errorf("secrets: KMS key ID cannot be empty")

// KMSClient is the envelope-encryption key operations this package
// needs.
type KMSClient interface {
	GenerateDataKey(ctx context.Context, encryptionContext map[string]string) (plainKey, encryptedKey []byte, err error)
	DecryptDataKey(ctx context.Context, encryptedKey []byte, encryptionContext map[string]string) ([]byte, error)
}

// awsKMSClient wraps the AWS KMS SDK client, caching data keys: one
// cache entry per (keyID, context), TTL bounded.
type awsKMSClient struct {
	client *kms.Client
	keyID string

	mu sync.RWMutex
	cache map[string]cachedKey
}

type cachedKey struct {
	plain, encrypted []byte
	expiresAt time.Time
}

// NewKMSClient builds an AWS KMS-backed client for keyID, with
// LocalStack support via LOCALSTACK_ENDPOINT.
func NewKMSClient(ctx context.Context, keyID string) (*awsKMSClient, error) {
	if keyID == "" {
		return nil, ErrInvalidKeyID
	}
	cfg, err := loadAWSConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: load AWS config: %w", err)
	}
	return &awsKMSClient{
		client: kms.NewFromConfig(cfg),
		keyID: keyID,
		cache: make(map[string]cachedKey),
	}, nil
}

func loadAWSConfig(ctx context.Context) (aws.Config, error) {
	if endpoint := os.Getenv("LOCALSTACK_ENDPOINT"); endpoint != "" {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("us-east-1"))
		if err != nil {
			return aws.Config{}, err
		}
		cfg.BaseEndpoint = aws.String(endpoint)
		return cfg, nil
	}
	return config.LoadDefaultConfig(ctx)
}

func (c *awsKMSClient) GenerateDataKey(ctx context.Context, encryptionContext map[string]string) ([]byte, []byte, error) {
	cacheKey := buildCacheKey(c.keyID, encryptionContext)
	if plain, encrypted, ok := c.cached(cacheKey); ok {
		return plain, encrypted, nil
	}

	out, err := c.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
			KeyId: aws.String(c.keyID),
			NumberOfBytes: aws.Int32(dataKeySize),
			EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("secrets: kms GenerateDataKey: %w", err)
	}
	if len(out.Plaintext) != dataKeySize {
		return nil, nil, fmt.Errorf("secrets: unexpected data key size %d", len(out.Plaintext))
	}

	c.store(cacheKey, out.Plaintext, out.CiphertextBlob)
	return out.Plaintext, out.CiphertextBlob, nil
}

func (c *awsKMSClient) DecryptDataKey(ctx context.Context, encryptedKey []byte, encryptionContext map[string]string) ([]byte, error) {
	if len(encryptedKey) == 0 {
		return nil, fmt.Errorf("secrets: empty encrypted data key")
	}
	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{
			CiphertextBlob: encryptedKey,
			EncryptionContext: encryptionContext,
	})
	if err != nil {
		return nil, fmt.Errorf("secrets: kms Decrypt: %w", err)
	}
	if len(out.Plaintext) != dataKeySize {
		return nil, fmt.Errorf("secrets: unexpected decrypted key size %d", len(out.Plaintext))
	}
	return out.Plaintext, nil
}

func (c *awsKMSClient) cached(key string) ([]byte, []byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil, false
	}
	return append([]byte(nil), entry.plain...), append([]byte(nil), entry.encrypted...), true
}

func (c *awsKMSClient) store(key string, plain, encrypted []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cachedKey{
		plain: append([]byte(nil), plain...),
		encrypted: append([]byte(nil), encrypted...),
		expiresAt: time.Now().Add(dataKeyCacheTTL),
	}
}

func buildCacheKey(keyID string, encryptionContext map[string]string) string {
	key := keyID
	for k, v := range encryptionContext {
		key += ":" + k + "=" + v
	}
	return key
}

// clearKey zeros key material in place after use.
func clearKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
