package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// AuthTestSuite auth 测试套件.
type AuthTestSuite struct {
	suite.Suite
}

func TestAuthSuite(t *testing.T) {
	suite.Run(t, new(AuthTestSuite))
}

func (s *AuthTestSuite) TestUser_RoleNames() {
	u := &User{Roles: []RoleAssignment{{Role: "user"}, {Role: ""}, {Role: "admin"}}}
	s.Equal([]string{"user", "admin"}, u.RoleNames())

	var nilUser *User
	s.Nil(nilUser.RoleNames())
}

func (s *AuthTestSuite) TestSession_Expired() {
	now := time.Now()
	s.False((&Session{}).Expired(now))
	s.False((&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
	s.True((&Session{ExpiresAt: now.Add(-time.Minute)}).Expired(now))
}

func (s *AuthTestSuite) TestPrincipalContext() {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	s.False(ok)
	s.Panics(func() { MustFromContext(ctx) })

	p := &Principal{ID: "u1", Roles: []string{"admin"}}
	ctx = WithPrincipal(ctx, p)
	got, ok := FromContext(ctx)
	s.True(ok)
	s.Same(p, got)
	s.True(got.HasRole("admin"))
	s.False(got.HasRole("Admin"))
}

func (s *AuthTestSuite) TestFuncAdapters() {
	var sp SessionProvider = SessionProviderFunc(func(context.Context, *http.Request) (*Session, error) {
		return &Session{UserID: "u1"}, nil
	})
	sess, err := sp.Session(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	s.Require().NoError(err)
	s.Equal("u1", sess.UserID)

	var us UserStore = UserStoreFunc(func(_ context.Context, id string) (*User, error) {
		if id == "" {
			return nil, ErrUserNotFound
		}
		return &User{ID: id}, nil
	})
	_, err = us.User(context.Background(), "")
	s.ErrorIs(err, ErrUserNotFound)
}
