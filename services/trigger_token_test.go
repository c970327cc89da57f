package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestTriggerTokens(t *testing.T) {
	tokens, err := NewTriggerTokens(testSecret)
	require.NoError(t, err)

	token, err := tokens.Issue("scheduler", time.Hour)
	require.NoError(t, err)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "scheduler", claims.Subject)
	assert.Equal(t, "run", claims.Scope)
}

func TestTriggerTokens_Rejects(t *testing.T) {
	tokens, _ := NewTriggerTokens(testSecret)
	other, _ := NewTriggerTokens("another-secret-of-16+")

	expired, err := tokens.Issue("scheduler", -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue("scheduler", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": foreign,
		"garbage":      "not.a.token",
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.Validate(token)
			assert.Error(t, err)
		})
	}
}

func TestNewTriggerTokens_ShortSecret(t *testing.T) {
	_, err := NewTriggerTokens("short")
	assert.Error(t, err)
}
