package cert

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"github.com/gantryhq/gantry/pkg/domain"
	"github.com/gantryhq/gantry/pkg/types"
)

const (
	selfSignedValidity = 365 * 24 * time.Hour
	selfSignedKeySize  = 2048
)

// SelfSigned generates and persists a self-signed certificate for the
// domain set: CN is the primary domain, every domain is a DNS SAN.
func (e *Engine) SelfSigned(ctx context.Context, domains []string) (*types.Certificate, error) {
	if len(domains) == 0 {
		return nil, types.NewValidation("empty domain list")
	}

	key, err := rsa.GenerateKey(rand.Reader, selfSignedKeySize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: domain.Primary(domains),
		},
		NotBefore:             now,
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              domains,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	return e.persist(ctx, domains, string(certPEM), string(keyPEM), template.NotAfter)
}
