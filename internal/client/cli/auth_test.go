package cli

import (
	"bufio"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/comicsync/internal/client/client"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
)

func stubInputs(t *testing.T, username string, password []byte) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return username, nil }
	getPassword = func(_ io.Writer) ([]byte, error) { return append([]byte(nil), password...), nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}

func TestLogin_Online(t *testing.T) {
	stubInputs(t, "alice", []byte("secret"))
	a, out := newTestApp(t, newFakeRemote(), "")

	require.NoError(t, a.Login(context.Background()))
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, ModeOnline, a.mode())
	assert.Contains(t, out.String(), "Login successful")
}

func TestLogin_OfflineFallback(t *testing.T) {
	stubInputs(t, "alice", []byte("secret"))
	remote := newFakeRemote()
	a, out := newTestApp(t, remote, "")

	require.NoError(t, a.Login(context.Background()))

	remote.loginErr = client.ErrUnavailable
	a.userName = ""
	require.NoError(t, a.Login(context.Background()))
	assert.True(t, a.isLoggedIn())
	assert.Equal(t, ModeOffline, a.mode())
	assert.Contains(t, out.String(), "Offline login successful")
}

func TestLogin_OfflineWithoutCachedData(t *testing.T) {
	stubInputs(t, "alice", []byte("secret"))
	remote := newFakeRemote()
	remote.loginErr = client.ErrUnavailable
	a, _ := newTestApp(t, remote, "")

	err := a.Login(context.Background())
	require.ErrorIs(t, err, client.ErrLocalDataNotAvailable)
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, ModeDisabled, a.mode())
}

func TestLogin_Rejected(t *testing.T) {
	stubInputs(t, "alice", []byte("wrong"))
	remote := newFakeRemote()
	remote.loginErr = client.ErrUnauthorized
	a, _ := newTestApp(t, remote, "")

	require.ErrorIs(t, a.Login(context.Background()), client.ErrUnauthorized)
	assert.False(t, a.isLoggedIn())
	assert.Equal(t, ModeOnline, a.mode())
}

func TestRegister_Success(t *testing.T) {
	stubInputs(t, "alice", []byte("secret"))
	a, out := newTestApp(t, newFakeRemote(), "")

	require.NoError(t, a.Register(context.Background()))
	assert.Contains(t, out.String(), "Success!")
}

func TestLogout_WipesReplica(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestApp(t, newFakeRemote(), "")
	loggedIn(a)
	require.NoError(t, a.Add(ctx, []string{"books", "title=x"}))

	require.NoError(t, a.Logout(ctx))
	assert.False(t, a.isLoggedIn())
	rows, err := a.store.Dirty(ctx, models.KindBooks)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
