package cert

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/gantryhq/gantry/pkg/storage"
	"github.com/gantryhq/gantry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfSigned(t *testing.T) {
	store := storage.NewMemoryStore()
	engine, _, _ := newTestEngine(t, store, "n1")
	ctx := context.Background()

	domains := []string{"internal.example.com", "alt.example.com"}
	cert, err := engine.SelfSigned(ctx, domains)
	require.NoError(t, err)

	block, _ := pem.Decode([]byte(cert.CertPEM))
	require.NotNil(t, block)
	parsed, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "internal.example.com", parsed.Subject.CommonName)
	assert.ElementsMatch(t, domains, parsed.DNSNames)
	assert.WithinDuration(t, time.Now().AddDate(1, 0, 0), parsed.NotAfter, 48*time.Hour)

	keyBlock, _ := pem.Decode([]byte(cert.KeyPEM))
	require.NotNil(t, keyBlock)
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	require.NoError(t, err)
	assert.Equal(t, 2048, key.N.BitLen())

	// Persisted like any other certificate
	found, err := store.FindValidCertificate(ctx, cert.DomainsHash, time.Now())
	require.NoError(t, err)
	assert.Equal(t, cert.ID, found.ID)
}

func TestSelfSignedEmptyDomains(t *testing.T) {
	store := storage.NewMemoryStore()
	engine, _, _ := newTestEngine(t, store, "n1")

	_, err := engine.SelfSigned(context.Background(), nil)
	assert.True(t, types.IsValidation(err))
}
