package adapter

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/aelexs/time-engine/internal/auth"
	"github.com/aelexs/time-engine/internal/domain"
)

// secretsClient is the Secrets Manager subset the key store reads.
type secretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// paramsClient is the SSM Parameter Store subset the key store reads.
type paramsClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	ssm.GetParametersByPathAPIClient
}

var _ auth.KeyStore = (*AWSKeyStore)(nil)

const (
	currentKeyIDParam  = "current-key-id"
	publicKeysParamDir = "public-keys/"

	defaultPublicKeyTTL       = 5 * time.Minute
	defaultUnknownKidCooldown = 30 * time.Second
)

// AWSKeyStoreConfig configures an AWSKeyStore.
type AWSKeyStoreConfig struct {
	Secrets secretsClient
	Params  paramsClient
	Clock   domain.Clock

	// ParamPrefix holds "current-key-id" and "public-keys/<kid>".
	ParamPrefix string
	// SecretPrefix + key ID names the PEM private key secret.
	SecretPrefix string

	PublicKeyTTL       time.Duration
	UnknownKidCooldown time.Duration
}

// AWSKeyStore serves the signing key from Secrets Manager and verification
// keys from SSM. The signing key is loaded once at construction; public keys
// are reloaded when older than the TTL, or on an unknown kid at most once
// per cooldown.
type AWSKeyStore struct {
	cfg AWSKeyStoreConfig

	signingKey *rsa.PrivateKey
	signingKID string

	mu             sync.RWMutex
	publicKeys     map[string]*rsa.PublicKey
	loadedAt       time.Time
	lastUnknownKid time.Time
}

// NewAWSKeyStore loads the current signing key and every public key. It fails
// when any of them is missing or unparseable.
func NewAWSKeyStore(ctx context.Context, cfg AWSKeyStoreConfig) (*AWSKeyStore, error) {
	if cfg.PublicKeyTTL == 0 {
		cfg.PublicKeyTTL = defaultPublicKeyTTL
	}
	if cfg.UnknownKidCooldown == 0 {
		cfg.UnknownKidCooldown = defaultUnknownKidCooldown
	}

	kid, err := getParam(ctx, cfg.Params, cfg.ParamPrefix+currentKeyIDParam)
	if err != nil {
		return nil, fmt.Errorf("key store: current key id: %w", err)
	}

	secretID := cfg.SecretPrefix + kid
	secret, err := cfg.Secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("key store: get secret %q: %w", secretID, err)
	}
	if secret.SecretString == nil {
		return nil, fmt.Errorf("key store: secret %q has no string value", secretID)
	}
	signingKey, err := auth.ParsePrivateKeyPEM([]byte(*secret.SecretString))
	if err != nil {
		return nil, fmt.Errorf("key store: key %q: %w", kid, err)
	}

	ks := &AWSKeyStore{cfg: cfg, signingKey: signingKey, signingKID: kid}
	if err := ks.reload(ctx, false); err != nil {
		return nil, err
	}
	return ks, nil
}

// SigningKey returns the private key loaded at construction.
func (ks *AWSKeyStore) SigningKey() (*rsa.PrivateKey, string, error) {
	return ks.signingKey, ks.signingKID, nil
}

// PublicKey returns the verification key for kid. auth.KeyStore carries no
// context, so reloads run under a background context bounded by
// domain.DynamoDBTimeout.
func (ks *AWSKeyStore) PublicKey(kid string) (*rsa.PublicKey, error) {
	now := ks.cfg.Clock.Now()

	ks.mu.RLock()
	pk, ok := ks.publicKeys[kid]
	stale := now.Sub(ks.loadedAt) > ks.cfg.PublicKeyTTL
	coolingDown := now.Sub(ks.lastUnknownKid) <= ks.cfg.UnknownKidCooldown
	ks.mu.RUnlock()

	if ok && !stale {
		return pk, nil
	}
	if !ok && !stale && coolingDown {
		return nil, fmt.Errorf("unknown key ID %q", kid)
	}

	ctx, cancel := context.WithTimeout(context.Background(), domain.DynamoDBTimeout)
	defer cancel()
	if err := ks.reload(ctx, !ok); err != nil {
		if ok {
			// Serve the stale key rather than fail verification.
			return pk, nil
		}
		return nil, err
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if pk, ok := ks.publicKeys[kid]; ok {
		return pk, nil
	}
	return nil, fmt.Errorf("unknown key ID %q", kid)
}

// reload replaces the public key set from SSM.
func (ks *AWSKeyStore) reload(ctx context.Context, unknownKid bool) error {
	dir := ks.cfg.ParamPrefix + publicKeysParamDir
	keys := make(map[string]*rsa.PublicKey)

	pages := ssm.NewGetParametersByPathPaginator(ks.cfg.Params, &ssm.GetParametersByPathInput{
		Path:      aws.String(dir),
		Recursive: aws.Bool(true),
	})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("key store: list public keys under %q: %w", dir, err)
		}
		for _, p := range page.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			kid := strings.TrimPrefix(*p.Name, dir)
			pk, err := auth.ParsePublicKeyPEM([]byte(*p.Value))
			if err != nil {
				return fmt.Errorf("key store: public key %q: %w", kid, err)
			}
			keys[kid] = pk
		}
	}

	now := ks.cfg.Clock.Now()
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.signingKey != nil {
		if _, ok := keys[ks.signingKID]; !ok {
			keys[ks.signingKID] = &ks.signingKey.PublicKey
		}
	}
	ks.publicKeys = keys
	ks.loadedAt = now
	if unknownKid {
		ks.lastUnknownKid = now
	}
	return nil
}

func getParam(ctx context.Context, client paramsClient, name string) (string, error) {
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil || *out.Parameter.Value == "" {
		return "", errors.New("parameter " + name + " has no value")
	}
	return *out.Parameter.Value, nil
}
