package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

type mockRepository struct {
	users    map[int64]*User
	byEmail  map[string]int64
	sessions map[string]int64
	nextID   int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		users:    make(map[int64]*User),
		byEmail:  make(map[string]int64),
		sessions: make(map[string]int64),
		nextID:   1,
	}
}

func (m *mockRepository) CreateUser(ctx context.Context, u *User) (int64, error) {
	if _, ok := m.byEmail[u.Email]; ok {
		return 0, ErrEmailTaken
	}
	cp := *u
	cp.ID = m.nextID
	cp.IsActive = true
	m.nextID++
	m.users[cp.ID] = &cp
	m.byEmail[cp.Email] = cp.ID
	return cp.ID, nil
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m.users[id], nil
}

func (m *mockRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (m *mockRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	m.sessions[id] = userID
	return nil
}

func (m *mockRepository) DeleteSession(ctx context.Context, id string) error {
	delete(m.sessions, id)
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(newMockRepository())

	u, err := svc.Register(context.Background(), RegisterRequest{
		Name:         "Ravi",
		Email:        "Ravi@Example.com",
		Password:     "correct horse",
		BusinessName: "Ravi Scrap Traders",
	})
	require.NoError(t, err)
	assert.Equal(t, "ravi@example.com", u.Email, "emails are normalised to lower case")
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	got, err := svc.Authenticate(context.Background(), "ravi@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMockRepository())
	_, err := svc.Register(context.Background(), RegisterRequest{Email: "x@y.com", Password: "p"})
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := NewService(newMockRepository())
	_, err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), RegisterRequest{Name: "B", Email: "a@b.com", Password: "password2"})
	assert.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestAuthenticateRejectsBadPassword(t *testing.T) {
	svc := NewService(newMockRepository())
	_, err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), "a@b.com", "password2")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Authenticate(context.Background(), "missing@b.com", "password1")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateRejectsInactive(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo)
	u, err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@b.com", Password: "password1"})
	require.NoError(t, err)

	repo.users[u.ID].IsActive = false
	_, err = svc.Authenticate(context.Background(), "a@b.com", "password1")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
