package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examprep/backend/internal/models"
	"examprep/backend/internal/security"
)

func TestRegister_NormalizesAndGrantsStarterPermissions(t *testing.T) {
	env := newTestEnv(t)

	res := env.register(t, "  John Doe ", " J@X.com", " 987654321 ")

	assert.Equal(t, "JOHN DOE", res.User.Username)
	assert.Equal(t, "j@x.com", res.User.Email)
	assert.Equal(t, "987654321", res.User.Phone)
	assert.Equal(t, models.UserRoleBasic, res.User.Role)
	assert.True(t, res.User.IsActive)
	assert.True(t, res.User.Permissions.Allows("dashboard", "view"))
	assert.True(t, res.User.Permissions.Allows("exam-basic", "take_exam"))
	assert.True(t, res.User.Permissions.Allows("exam-basic", "view_results"))
	assert.Len(t, res.User.Permissions, 2)
	assert.NotEqual(t, "secret1", string(res.User.PasswordHash))

	userID, err := env.tokens.Verify(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	_, err = env.gate.Authenticate(context.Background(), res.Token)
	assert.NoError(t, err, "registration token is immediately usable")
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "John Doe", "j@x.com", "987654321")

	cases := []struct {
		name     string
		username string
		email    string
		phone    string
		message  string
	}{
		{"email", "Someone Else", "J@x.com", "111111111", "Ya existe un usuario con este email"},
		{"username", "john doe", "other@x.com", "111111111", "Ya existe un usuario con este nombre de usuario"},
		{"phone", "Someone Else", "other@x.com", "987654321", "Ya existe un usuario con este número de teléfono"},
		{"email wins over phone", "Someone Else", "j@x.com", "987654321", "Ya existe un usuario con este email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), RegisterInput{
				Username: tc.username,
				Email:    tc.email,
				Password: "secret1",
				Phone:    tc.phone,
				Client:   browserB,
			})
			require.ErrorIs(t, err, ErrDuplicateIdentity)
			assert.Equal(t, tc.message, err.Error())
		})
	}

	_, total, err := env.admin.ListUsers(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total, "failed registrations persist nothing")
}

func TestRegister_DuplicateAgainstInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "John Doe", "j@x.com", "987654321")
	_, err := env.admin.Deactivate(context.Background(), res.User.ID)
	require.NoError(t, err)

	_, err = env.auth.Register(context.Background(), RegisterInput{
		Username: "Other", Email: "j@x.com", Password: "secret1", Phone: "222222222", Client: browserA,
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestRegister_RequiresPhone(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.auth.Register(context.Background(), RegisterInput{
		Username: "John", Email: "j@x.com", Password: "secret1", Phone: "   ",
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "El número de teléfono es requerido", err.Error())
}

func TestLogin_InvalidCredentialsAreGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "John Doe", "j@x.com", "987654321")

	_, errWrongPassword := env.auth.Login(context.Background(), LoginInput{Email: "j@x.com", Password: "nope", Client: browserA})
	_, errNoUser := env.auth.Login(context.Background(), LoginInput{Email: "ghost@x.com", Password: "secret1", Client: browserA})

	require.ErrorIs(t, errWrongPassword, ErrInvalidCredentials)
	require.ErrorIs(t, errNoUser, ErrInvalidCredentials)
	assert.Equal(t, errWrongPassword.Error(), errNoUser.Error())
	assert.Equal(t, 1, env.limiter.count("j@x.com"))
	assert.Equal(t, 1, env.limiter.count("ghost@x.com"))
}

func TestLogin_InactiveUserRejected(t *testing.T) {
	env := newTestEnv(t)
	res := env.register(t, "John Doe", "j@x.com", "987654321")
	_, err := env.admin.Deactivate(context.Background(), res.User.ID)
	require.NoError(t, err)

	_, err = env.auth.Login(context.Background(), LoginInput{Email: "j@x.com", Password: "secret1", Client: browserA})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_Throttled(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "John Doe", "j@x.com", "987654321")
	env.limiter.max = 2

	for i := 0; i < 2; i++ {
		_, err := env.auth.Login(context.Background(), LoginInput{Email: "j@x.com", Password: "bad", Client: browserA})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := env.auth.Login(context.Background(), LoginInput{Email: "J@X.COM", Password: "secret1", Client: browserA})
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestLogin_SuccessResetsLimiter(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "John Doe", "j@x.com", "987654321")

	_, err := env.auth.Login(context.Background(), LoginInput{Email: "j@x.com", Password: "bad", Client: browserA})
	require.Error(t, err)
	env.login(t, "j@x.com", browserA)
	assert.Equal(t, 0, env.limiter.count("j@x.com"))
}

func TestLogin_SameDeviceReusesRow(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	first := env.login(t, "j@x.com", browserA)
	second := env.login(t, "j@x.com", browserA)

	assert.True(t, first.Reused, "registration opened the browser A session")
	assert.True(t, second.Reused)
	assert.Equal(t, reg.Session.ID, second.Session.ID)
	assert.NotEqual(t, first.Token, second.Token)

	rows := env.store.SessionsOf(reg.User.ID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsActive)
	assert.Equal(t, second.Token, rows[0].Token)
	assert.Equal(t, browserA.DeviceID(), rows[0].DeviceID)

	_, err := env.gate.Authenticate(context.Background(), first.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid, "rotated token no longer matches the row")
	_, err = env.gate.Authenticate(context.Background(), second.Token)
	assert.NoError(t, err)
}

func TestLogin_NewDeviceForceClosesPrevious(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	a := env.login(t, "j@x.com", browserA)
	b := env.login(t, "j@x.com", browserB)
	assert.False(t, b.Reused)

	rows := env.store.SessionsOf(reg.User.ID)
	require.Len(t, rows, 2)

	var rowA, rowB models.Session
	for _, r := range rows {
		switch r.DeviceID {
		case browserA.DeviceID():
			rowA = r
		case browserB.DeviceID():
			rowB = r
		}
	}
	assert.False(t, rowA.IsActive)
	assert.True(t, rowA.ForcedLogout)
	require.NotNil(t, rowA.LogoutTime)
	assert.True(t, rowB.IsActive)
	assert.False(t, rowB.ForcedLogout)
	assert.Equal(t, browserB.UserAgent, rowB.UserAgent)
	assert.Equal(t, browserB.IPAddress, rowB.IPAddress)

	// A's token still verifies cryptographically but its session is gone.
	_, err := env.tokens.Verify(a.Token)
	require.NoError(t, err)
	_, err = env.gate.Authenticate(context.Background(), a.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = env.gate.Authenticate(context.Background(), b.Token)
	assert.NoError(t, err)
}

func TestLogin_ReturningDeviceGetsNewRow(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	env.login(t, "j@x.com", browserB)
	back := env.login(t, "j@x.com", browserA)

	assert.False(t, back.Reused)
	assert.NotEqual(t, reg.Session.ID, back.Session.ID)
	assert.Len(t, env.store.SessionsOf(reg.User.ID), 3)
	assert.Equal(t, 1, env.activeCount(reg.User.ID))
}

func TestLogin_UpdatesLastLogin(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	res := env.login(t, "j@x.com", browserA)
	require.NotNil(t, res.User.LastLogin)

	stored, err := env.auth.Profile(context.Background(), reg.User.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	assert.Equal(t, *res.User.LastLogin, *stored.LastLogin)
}

func TestLogin_AtMostOneActiveSession(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	sequence := []ClientInfo{browserA, browserB, browserB, browserC, browserA, browserA, browserC, browserB}
	for i, client := range sequence {
		res := env.login(t, "j@x.com", client)
		require.Equal(t, 1, env.activeCount(reg.User.ID), "after login %d", i)
		assert.Equal(t, client.DeviceID(), res.Session.DeviceID)
	}
}

func TestLogin_ConcurrentDevicesKeepOneActive(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	clients := []ClientInfo{browserA, browserB, browserC}
	var wg sync.WaitGroup
	errs := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(client ClientInfo) {
			defer wg.Done()
			_, err := env.auth.Login(context.Background(), LoginInput{Email: "j@x.com", Password: "secret1", Client: client})
			errs <- err
		}(clients[i%len(clients)])
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, env.activeCount(reg.User.ID))
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	reg := env.register(t, "John Doe", "j@x.com", "987654321")

	require.NoError(t, env.auth.Logout(context.Background(), reg.Token))

	rows := env.store.SessionsOf(reg.User.ID)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].IsActive)
	assert.False(t, rows[0].ForcedLogout)
	assert.NotNil(t, rows[0].LogoutTime)

	_, err := env.gate.Authenticate(context.Background(), reg.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// Repeated, absent and garbage tokens are no-ops.
	assert.NoError(t, env.auth.Logout(context.Background(), reg.Token))
	assert.NoError(t, env.auth.Logout(context.Background(), ""))
	assert.NoError(t, env.auth.Logout(context.Background(), "garbage"))
}

func TestProfile_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Profile(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestErrorKinds(t *testing.T) {
	err := duplicateError("email")
	assert.True(t, errors.Is(err, ErrDuplicateIdentity))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "duplicate_identity", KindDuplicateIdentity.String())

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindDuplicateIdentity, svcErr.Kind)
}

func TestClientInfo_DeviceID(t *testing.T) {
	assert.Equal(t, security.DeviceFingerprint(browserA.UserAgent, browserA.IPAddress), browserA.DeviceID())
	assert.NotEqual(t, browserA.DeviceID(), browserB.DeviceID())
}

func TestLogin_DeactivatedBetweenCheckAndSessionOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.register(t, "John", "j@x.com", "987654321")

	user, err := env.auth.VerifyCredentials(ctx, "j@x.com", "secret1")
	require.NoError(t, err)

	_, err = env.admin.Deactivate(ctx, res.User.ID)
	require.NoError(t, err)

	late, err := env.auth.openSession(ctx, user, browserB)
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, late.Token)
	assert.Zero(t, env.activeCount(res.User.ID))

	_, err = env.admin.SetStatus(ctx, res.User.ID, true)
	require.NoError(t, err)
	assert.Zero(t, env.activeCount(res.User.ID))

	_, err = env.gate.Authenticate(ctx, res.Token)
	assert.ErrorIs(t, err, ErrSessionInvalid)
}
