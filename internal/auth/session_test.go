package auth

import (
	"testing"

	"github.com/jason-s-yu/hitline/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	iss, err := NewIssuer()
	require.NoError(t, err)

	tok, err := iss.NewSessionToken(models.RolePlayer, "123456", "01")
	require.NoError(t, err)

	claims, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, models.RolePlayer, claims.Role)
	assert.Equal(t, "123456", claims.RoomCode)
	assert.Equal(t, "01", claims.PlayerID)
	assert.NotEmpty(t, claims.ID)
}

func TestTokensAreUnique(t *testing.T) {
	iss, err := NewIssuer()
	require.NoError(t, err)
	a, _ := iss.NewSessionToken(models.RoleHost, "123456", "")
	b, _ := iss.NewSessionToken(models.RoleHost, "123456", "")
	assert.NotEqual(t, a, b)
}

func TestParseRejectsForeignKey(t *testing.T) {
	a, _ := NewIssuer()
	b, _ := NewIssuer()
	tok, err := a.NewSessionToken(models.RoleHost, "654321", "")
	require.NoError(t, err)

	_, err = b.Parse(tok)
	assert.Error(t, err)
	_, err = a.Parse("not-a-token")
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "", Fingerprint(""))
	fp := Fingerprint("abc")
	assert.Len(t, fp, 12)
	assert.Equal(t, fp, Fingerprint("abc"))
	assert.NotEqual(t, fp, Fingerprint("abd"))
}

func TestVerifySessionChecksRole(t *testing.T) {
	iss, err := NewIssuer()
	require.NoError(t, err)
	tok, err := iss.NewSessionToken(models.RolePlayer, "123456", "01")
	require.NoError(t, err)

	assert.NoError(t, iss.VerifySession(tok, models.RolePlayer))
	assert.Error(t, iss.VerifySession(tok, models.RoleHost))
	assert.Error(t, iss.VerifySession("not-a-token", models.RolePlayer))
}
