package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckBasic(t *testing.T) {
	tests := []struct {
		name               string
		gotUser, gotPass   string
		wantUser, wantPass string
		want               bool
	}{
		{"match", "admin", "s3cret", "admin", "s3cret", true},
		{"wrong user", "root", "s3cret", "admin", "s3cret", false},
		{"wrong pass", "admin", "guess", "admin", "s3cret", false},
		{"both empty presented", "", "", "admin", "s3cret", false},
		{"case sensitive", "Admin", "s3cret", "admin", "s3cret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckBasic(tt.gotUser, tt.gotPass, tt.wantUser, tt.wantPass))
		})
	}
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	assert.True(t, VerifyPassword(hash, "hunter2"))
	assert.False(t, VerifyPassword(hash, "hunter3"))
	assert.False(t, VerifyPassword("not-a-hash", "hunter2"))
}

func TestTokenIssueAndParse(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)

	signed, expires, err := issuer.Issue("ops", RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := issuer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestTokenParseRejectsWrongSecret(t *testing.T) {
	signed, _, err := NewTokenIssuer("secret-a", time.Hour).Issue("ops", RoleUser)
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret-b", time.Hour).Parse(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenParseRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", time.Minute)
	signed, _, err := issuer.Issue("ops", RoleUser)
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = issuer.Parse(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenParseRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("unit-test-secret", time.Hour)

	_, err := issuer.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(RoleAdmin))
	assert.True(t, ValidRole(RoleUser))
	assert.False(t, ValidRole(Role("superuser")))
	assert.False(t, ValidRole(Role("")))
}
