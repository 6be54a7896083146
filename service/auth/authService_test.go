// service/auth/auth_service_test.go
package authsvc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wmuth/SoundGoodDB/model"
	authrepo "github.com/wmuth/SoundGoodDB/repository/auth"
	authsvc "github.com/wmuth/SoundGoodDB/service/auth"
	"github.com/wmuth/SoundGoodDB/util/hash"
)

type mockRepo struct {
	byEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn  func(ctx context.Context, u *model.User) error
}

var _ authrepo.Repo = (*mockRepo)(nil)

func (m *mockRepo) ByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.byEmailFn == nil {
		return nil, errors.New("no rows")
	}
	return m.byEmailFn(ctx, email)
}

func (m *mockRepo) Create(ctx context.Context, u *model.User) error {
	if m.createFn == nil {
		return nil
	}
	return m.createFn(ctx, u)
}

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := hash.HashPassword(plain)
	require.NoError(t, err)
	return h
}

func TestRegister_Success(t *testing.T) {
	m := &mockRepo{
		createFn: func(ctx context.Context, u *model.User) error {
			u.ID = 42
			return nil
		},
	}
	s := authsvc.New(m, "secret")

	u, token, err := s.Register(context.Background(), model.RegisterReq{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@soundgood.se",
		Username:  "ada",
		Password:  "hunter22",
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), u.ID)
	require.NotEmpty(t, token)
	require.NotEqual(t, "hunter22", u.PasswordHash)
}

func TestLogin_Success(t *testing.T) {
	hashed := mustHash(t, "hunter22")
	m := &mockRepo{
		byEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 7, Email: email, PasswordHash: hashed}, nil
		},
	}
	s := authsvc.New(m, "secret")

	u, token, err := s.Login(context.Background(), model.LoginReq{
		Email:    "ada@soundgood.se",
		Password: "hunter22",
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), u.ID)
	require.NotEmpty(t, token)
}

func TestLogin_WrongPassword(t *testing.T) {
	hashed := mustHash(t, "hunter22")
	m := &mockRepo{
		byEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: 7, Email: email, PasswordHash: hashed}, nil
		},
	}
	s := authsvc.New(m, "secret")

	_, _, err := s.Login(context.Background(), model.LoginReq{
		Email:    "ada@soundgood.se",
		Password: "wrong",
	})
	require.ErrorIs(t, err, authsvc.ErrInvalidCreds)
}

func TestLogin_UnknownEmail(t *testing.T) {
	s := authsvc.New(&mockRepo{}, "secret")

	_, _, err := s.Login(context.Background(), model.LoginReq{
		Email:    "nobody@soundgood.se",
		Password: "hunter22",
	})
	require.ErrorIs(t, err, authsvc.ErrInvalidCreds)
}
