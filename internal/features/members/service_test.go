package members

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

type memStore struct {
	mu      sync.Mutex
	members map[int64]*Member
}

func newMemStore() *memStore {
	return &memStore{members: map[int64]*Member{}}
}

func (s *memStore) Upsert(_ context.Context, p Profile) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[p.UserID]
	if !ok {
		m = &Member{UserID: p.UserID}
		s.members[p.UserID] = m
	}
	m.Username = strings.TrimPrefix(p.Username, "@")
	m.FirstName = p.FirstName
	return !ok, nil
}

func (s *memStore) GetByUserID(_ context.Context, userID int64) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) GetByUsername(_ context.Context, username string) (*Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.members {
		if strings.EqualFold(m.Username, username) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (s *memStore) SetBanned(_ context.Context, userID int64, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return common.ErrUserNotFound
	}
	m.IsBanned = banned
	return nil
}

func (s *memStore) Count(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.members)), nil
}

type fakeAccounts struct {
	calls []int64
}

func (f *fakeAccounts) EnsureAccount(_ context.Context, userID int64) (*ledger.Balance, error) {
	f.calls = append(f.calls, userID)
	return &ledger.Balance{UserID: userID}, nil
}

func TestRegisterCreatesAccount(t *testing.T) {
	accounts := &fakeAccounts{}
	svc := NewService(newMemStore(), accounts)
	ctx := context.Background()

	m, err := svc.Register(ctx, Profile{UserID: 42, Username: "alice", FirstName: "Alice"})
	require.NoError(t, err)
	require.Equal(t, "@alice", m.DisplayName())
	require.Equal(t, []int64{42}, accounts.calls)

	_, err = svc.Register(ctx, Profile{UserID: 0})
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestGetByUsernameStripsAt(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()
	_, err := svc.Register(ctx, Profile{UserID: 7, Username: "Bob"})
	require.NoError(t, err)

	m, err := svc.GetByUsername(ctx, " @bob ")
	require.NoError(t, err)
	require.Equal(t, int64(7), m.UserID)

	_, err = svc.GetByUsername(ctx, "@nobody")
	require.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = svc.GetByUsername(ctx, "@")
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestIsBanned(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	ctx := context.Background()

	banned, err := svc.IsBanned(ctx, 5)
	require.NoError(t, err)
	require.False(t, banned)

	_, err = svc.Register(ctx, Profile{UserID: 5, FirstName: "Eve"})
	require.NoError(t, err)
	require.NoError(t, svc.SetBanned(ctx, 5, true))

	banned, err = svc.IsBanned(ctx, 5)
	require.NoError(t, err)
	require.True(t, banned)

	require.ErrorIs(t, svc.SetBanned(ctx, 6, true), common.ErrUserNotFound)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Иван Петров", (&Member{FirstName: "Иван", LastName: "Петров"}).DisplayName())
	require.Equal(t, "Игрок", (&Member{}).DisplayName())
}
