package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenVerifier authenticates admin and inter-node requests. A nil
// verifier on the server disables authentication (development).
type TokenVerifier interface {
	Verify(token string) error
}

// clusterTokenTTL bounds how long a fan-out credential stays usable
const clusterTokenTTL = time.Minute

// clusterClaims is the payload of an inter-node reload token
type clusterClaims struct {
	InstanceID string `json:"instance_id"`
	jwt.RegisteredClaims
}

// MintClusterToken creates a short-lived HS256 credential identifying
// the broadcasting node.
func MintClusterToken(secret, instanceID string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("cluster secret not configured")
	}
	now := time.Now()
	claims := clusterClaims{
		InstanceID: instanceID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(clusterTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HMACVerifier validates HS256 cluster tokens against the shared secret
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier creates a verifier for the given shared secret
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(token string) error {
	parsed, err := jwt.ParseWithClaims(token, &clusterClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
