package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepfake-detector/internal/apperr"
)

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	user, token, err := e.users.Register(ctx, " alice ", "Alice@Example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Empty(t, user.PasswordHash)

	id, err := e.users.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	again, loginToken, err := e.users.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Empty(t, again.PasswordHash)
	assert.NotEmpty(t, loginToken)
}

func TestRegisterRejects(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.register(t, "alice")

	tests := []struct {
		name, username, email, password string
		want                            apperr.Kind
	}{
		{"duplicate username", "alice", "other@example.com", "password123", apperr.KindConflict},
		{"duplicate email", "alice2", "alice@example.com", "password123", apperr.KindConflict},
		{"short password", "bob", "bob@example.com", "short", apperr.KindInvalidInput},
		{"password over bcrypt limit", "bob", "bob@example.com", strings.Repeat("p", 80), apperr.KindInvalidInput},
		{"missing username", "", "bob@example.com", "password123", apperr.KindInvalidInput},
		{"bad email", "bob", "not-an-email", "password123", apperr.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.users.Register(ctx, tt.username, tt.email, tt.password)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.register(t, "alice")

	_, _, unknownErr := e.users.Login(ctx, "nobody", "password123")
	_, _, wrongErr := e.users.Login(ctx, "alice", "wrong-password")

	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, apperr.KindInvalidCredentials, apperr.KindOf(unknownErr))
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice, _ := e.register(t, "alice")
	e.register(t, "bob")

	updated, err := e.users.UpdateProfile(ctx, alice.ID, "", "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", updated.Username)
	assert.Equal(t, "new@example.com", updated.Email)

	_, err = e.users.UpdateProfile(ctx, alice.ID, "bob", "")
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	_, err = e.users.UpdateProfile(ctx, 9999, "ghost", "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
