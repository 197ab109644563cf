package adapter

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/time-engine/internal/auth"
	"github.com/aelexs/time-engine/internal/domain/domaintest"
)

const (
	testParamPrefix  = "/time-engine/jwt/"
	testSecretPrefix = "time-engine/jwt/signing-key/"
)

type stubSecrets struct {
	getSecretValueFn func(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

func (s *stubSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return s.getSecretValueFn(ctx, params, optFns...)
}

type stubParams struct {
	getParameterFn        func(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	getParametersByPathFn func(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error)

	listCalls int
}

func (s *stubParams) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	return s.getParameterFn(ctx, params, optFns...)
}

func (s *stubParams) GetParametersByPath(ctx context.Context, params *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	s.listCalls++
	return s.getParametersByPathFn(ctx, params, optFns...)
}

type testKey struct {
	private *rsa.PrivateKey
	privPEM string
	pubPEM  string
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	priv, err := auth.EncodePrivateKeyPEM(key)
	require.NoError(t, err)
	pub, err := auth.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	return testKey{private: key, privPEM: string(priv), pubPEM: string(pub)}
}

func publicParam(kid, pem string) ssmtypes.Parameter {
	return ssmtypes.Parameter{Name: aws.String(testParamPrefix + publicKeysParamDir + kid), Value: aws.String(pem)}
}

// newKeyStoreStubs serves kid as the current key and publishes params.
func newKeyStoreStubs(t *testing.T, kid string, key testKey, params ...ssmtypes.Parameter) (*stubSecrets, *stubParams) {
	t.Helper()
	secrets := &stubSecrets{
		getSecretValueFn: func(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
			assert.Equal(t, testSecretPrefix+kid, aws.ToString(in.SecretId))
			return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(key.privPEM)}, nil
		},
	}
	ps := &stubParams{
		getParameterFn: func(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
			assert.Equal(t, testParamPrefix+currentKeyIDParam, aws.ToString(in.Name))
			return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(kid)}}, nil
		},
		getParametersByPathFn: func(_ context.Context, in *ssm.GetParametersByPathInput, _ ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
			assert.Equal(t, testParamPrefix+publicKeysParamDir, aws.ToString(in.Path))
			return &ssm.GetParametersByPathOutput{Parameters: params}, nil
		},
	}
	return secrets, ps
}

func newTestKeyStore(t *testing.T, secrets *stubSecrets, params *stubParams, clock *domaintest.FakeClock) (*AWSKeyStore, error) {
	t.Helper()
	return NewAWSKeyStore(context.Background(), AWSKeyStoreConfig{
		Secrets:      secrets,
		Params:       params,
		Clock:        clock,
		ParamPrefix:  testParamPrefix,
		SecretPrefix: testSecretPrefix,
	})
}

func TestNewAWSKeyStore(t *testing.T) {
	current, old := newTestKey(t), newTestKey(t)
	secrets, params := newKeyStoreStubs(t, "k2", current,
		publicParam("k2", current.pubPEM),
		publicParam("k1", old.pubPEM),
	)

	ks, err := newTestKeyStore(t, secrets, params, domaintest.NewFakeClock(fixedTime()))
	require.NoError(t, err)

	priv, kid, err := ks.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, "k2", kid)
	assert.True(t, current.private.Equal(priv))

	pk, err := ks.PublicKey("k1")
	require.NoError(t, err)
	assert.True(t, old.private.PublicKey.Equal(pk))
	assert.Equal(t, 1, params.listCalls)
}

func TestNewAWSKeyStore_SigningKeyVerifiesWithoutPublishedParam(t *testing.T) {
	key := newTestKey(t)
	secrets, params := newKeyStoreStubs(t, "k1", key)

	ks, err := newTestKeyStore(t, secrets, params, domaintest.NewFakeClock(fixedTime()))
	require.NoError(t, err)

	pk, err := ks.PublicKey("k1")
	require.NoError(t, err)
	assert.True(t, key.private.PublicKey.Equal(pk))
}

func TestNewAWSKeyStore_Errors(t *testing.T) {
	key := newTestKey(t)

	tests := []struct {
		name    string
		mutate  func(*stubSecrets, *stubParams)
		wantErr string
	}{
		{
			name: "current key id unavailable",
			mutate: func(_ *stubSecrets, p *stubParams) {
				p.getParameterFn = func(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
					return nil, errors.New("ssm down")
				}
			},
			wantErr: "current key id",
		},
		{
			name: "current key id empty",
			mutate: func(_ *stubSecrets, p *stubParams) {
				p.getParameterFn = func(context.Context, *ssm.GetParameterInput, ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
					return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{}}, nil
				}
			},
			wantErr: "has no value",
		},
		{
			name: "secret unavailable",
			mutate: func(s *stubSecrets, _ *stubParams) {
				s.getSecretValueFn = func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
					return nil, errors.New("access denied")
				}
			},
			wantErr: "get secret",
		},
		{
			name: "secret not PEM",
			mutate: func(s *stubSecrets, _ *stubParams) {
				s.getSecretValueFn = func(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
					return &secretsmanager.GetSecretValueOutput{SecretString: aws.String("not a key")}, nil
				}
			},
			wantErr: "no PEM block",
		},
		{
			name: "public key not PEM",
			mutate: func(_ *stubSecrets, p *stubParams) {
				p.getParametersByPathFn = func(context.Context, *ssm.GetParametersByPathInput, ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
					return &ssm.GetParametersByPathOutput{Parameters: []ssmtypes.Parameter{publicParam("k1", "garbage")}}, nil
				}
			},
			wantErr: `public key "k1"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secrets, params := newKeyStoreStubs(t, "k1", key, publicParam("k1", key.pubPEM))
			tt.mutate(secrets, params)

			_, err := newTestKeyStore(t, secrets, params, domaintest.NewFakeClock(fixedTime()))

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAWSKeyStore_PublicKey(t *testing.T) {
	t.Run("unknown kid reloads once per cooldown", func(t *testing.T) {
		current, rotated := newTestKey(t), newTestKey(t)
		published := []ssmtypes.Parameter{publicParam("k1", current.pubPEM)}
		secrets, params := newKeyStoreStubs(t, "k1", current)
		params.getParametersByPathFn = func(context.Context, *ssm.GetParametersByPathInput, ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
			return &ssm.GetParametersByPathOutput{Parameters: published}, nil
		}
		clock := domaintest.NewFakeClock(fixedTime())
		ks, err := newTestKeyStore(t, secrets, params, clock)
		require.NoError(t, err)

		_, err = ks.PublicKey("k2")
		require.Error(t, err)
		assert.Equal(t, 2, params.listCalls)

		// Published during the cooldown: not visible yet.
		published = append(published, publicParam("k2", rotated.pubPEM))
		clock.Advance(10 * time.Second)
		_, err = ks.PublicKey("k2")
		require.Error(t, err)
		assert.Equal(t, 2, params.listCalls)

		clock.Advance(defaultUnknownKidCooldown)
		pk, err := ks.PublicKey("k2")
		require.NoError(t, err)
		assert.True(t, rotated.private.PublicKey.Equal(pk))
		assert.Equal(t, 3, params.listCalls)
	})

	t.Run("stale cache reloads", func(t *testing.T) {
		key := newTestKey(t)
		secrets, params := newKeyStoreStubs(t, "k1", key, publicParam("k1", key.pubPEM))
		clock := domaintest.NewFakeClock(fixedTime())
		ks, err := newTestKeyStore(t, secrets, params, clock)
		require.NoError(t, err)

		_, err = ks.PublicKey("k1")
		require.NoError(t, err)
		assert.Equal(t, 1, params.listCalls)

		clock.Advance(defaultPublicKeyTTL + time.Second)
		_, err = ks.PublicKey("k1")
		require.NoError(t, err)
		assert.Equal(t, 2, params.listCalls)
	})

	t.Run("stale key served when reload fails", func(t *testing.T) {
		key := newTestKey(t)
		secrets, params := newKeyStoreStubs(t, "k1", key, publicParam("k1", key.pubPEM))
		clock := domaintest.NewFakeClock(fixedTime())
		ks, err := newTestKeyStore(t, secrets, params, clock)
		require.NoError(t, err)

		params.getParametersByPathFn = func(context.Context, *ssm.GetParametersByPathInput, ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
			return nil, errors.New("throttled")
		}
		clock.Advance(defaultPublicKeyTTL + time.Second)

		pk, err := ks.PublicKey("k1")
		require.NoError(t, err)
		assert.True(t, key.private.PublicKey.Equal(pk))
	})
}
