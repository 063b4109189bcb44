package provisioning_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/sso-hub/authclient/authfakes"
	"github.com/jrsteele09/sso-hub/directory"
	"github.com/jrsteele09/sso-hub/directory/repofakes"
	"github.com/jrsteele09/sso-hub/internal/errors"
	"github.com/jrsteele09/sso-hub/provisioning"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	backend *authfakes.FakeBackend
	dir     *repofakes.FakeDirectory
	service *provisioning.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	backend := authfakes.NewFakeBackend()
	dir := repofakes.NewFakeDirectory()
	return &testFixture{
		backend: backend,
		dir:     dir,
		service: provisioning.NewService(backend, dir, ".Example.com"),
	}
}

func validRequest() provisioning.WorkerRequest {
	return provisioning.WorkerRequest{
		Slug:      "JKowalski",
		PIN:       "482913",
		FirstName: "Jan",
		LastName:  "Kowalski",
		OrgID:     "org-a",
	}
}

func TestCreateWorker(t *testing.T) {
	ctx := context.Background()

	t.Run("creates account profile and membership", func(t *testing.T) {
		f := setupTestFixture(t)
		res, err := f.service.CreateWorker(ctx, validRequest())
		require.NoError(t, err)
		require.True(t, res.Created)
		require.Equal(t, "jkowalski@staff.example.com", res.Email)
		require.Equal(t, provisioning.CreatedMessage, res.Message)
		require.Equal(t, "482913", f.backend.Password(res.Email))

		p, err := f.dir.GetProfile(ctx, res.UserID)
		require.NoError(t, err)
		require.Equal(t, "Jan Kowalski", p.FullName)
		require.Equal(t, directory.AccountSimplified, p.AccountType)
		require.True(t, p.MustResetCredentials)

		ms, err := f.dir.ListMemberships(ctx, res.UserID)
		require.NoError(t, err)
		require.Equal(t, []directory.Membership{{UserID: res.UserID, TenantID: "org-a", Role: directory.RoleWorker}}, ms)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := setupTestFixture(t)
		req := validRequest()
		req.OrgID = " "
		_, err := f.service.CreateWorker(ctx, req)
		require.ErrorIs(t, err, provisioning.ErrMissingFields)
		require.ErrorIs(t, err, errors.ErrInvalidRequest)
		require.Zero(t, f.backend.Count("create_user"))
	})

	t.Run("existing account reuses its profile", func(t *testing.T) {
		f := setupTestFixture(t)
		first, err := f.service.CreateWorker(ctx, validRequest())
		require.NoError(t, err)

		req := validRequest()
		req.OrgID = "org-b"
		second, err := f.service.CreateWorker(ctx, req)
		require.NoError(t, err)
		require.False(t, second.Created)
		require.Equal(t, first.UserID, second.UserID)

		ms, err := f.dir.ListMemberships(ctx, first.UserID)
		require.NoError(t, err)
		require.Len(t, ms, 2)
	})

	t.Run("existing account without profile", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.AddUser("", "jkowalski@staff.example.com", "000001")
		_, err := f.service.CreateWorker(ctx, validRequest())
		require.ErrorIs(t, err, provisioning.ErrProfileNotFound)
	})

	t.Run("account creation failure", func(t *testing.T) {
		f := setupTestFixture(t)
		f.backend.CreateErr = &errors.ProviderError{Message: "Database error creating new user", Status: 500}
		_, err := f.service.CreateWorker(ctx, validRequest())
		require.ErrorIs(t, err, provisioning.ErrCreateAccount)
	})

	t.Run("profile failure rolls back a new account", func(t *testing.T) {
		f := setupTestFixture(t)
		f.dir.UpsertErr = errors.New("insert failed")
		_, err := f.service.CreateWorker(ctx, validRequest())
		require.ErrorIs(t, err, provisioning.ErrCreateProfile)
		require.Equal(t, 1, f.backend.Count("delete_user"))
		require.False(t, f.backend.HasUser("jkowalski@staff.example.com"))
	})

	t.Run("profile failure keeps an existing account", func(t *testing.T) {
		f := setupTestFixture(t)
		_, err := f.service.CreateWorker(ctx, validRequest())
		require.NoError(t, err)

		f.dir.UpsertErr = errors.New("insert failed")
		_, err = f.service.CreateWorker(ctx, validRequest())
		require.ErrorIs(t, err, provisioning.ErrCreateProfile)
		require.Zero(t, f.backend.Count("delete_user"))
		require.True(t, f.backend.HasUser("jkowalski@staff.example.com"))
	})
}
