package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerifyClusterToken(t *testing.T) {
	token, err := MintClusterToken("shared-secret", "node-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	verifier := NewHMACVerifier("shared-secret")
	assert.NoError(t, verifier.Verify(token))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := MintClusterToken("shared-secret", "node-1")
	require.NoError(t, err)

	verifier := NewHMACVerifier("different-secret")
	assert.Error(t, verifier.Verify(token))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	verifier := NewHMACVerifier("shared-secret")
	assert.Error(t, verifier.Verify("not.a.token"))
}

func TestMintRequiresSecret(t *testing.T) {
	_, err := MintClusterToken("", "node-1")
	assert.Error(t, err)
}
