package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

type memStore struct {
	mu     sync.Mutex
	cases  map[string]*Case
	items  map[string][]Item
	getErr error
}

func newMemStore() *memStore {
	return &memStore{cases: map[string]*Case{}, items: map[string][]Item{}}
}

func (m *memStore) GetCase(_ context.Context, id string) (*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, common.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCases(_ context.Context, activeOnly bool) ([]*Case, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Case
	for _, c := range m.cases {
		if activeOnly && !c.Active {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) GetItems(ctx context.Context, caseID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Как настоящий пул: отменённый контекст не доходит до запроса
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	return append([]Item(nil), m.items[caseID]...), nil
}

func (m *memStore) UpsertCase(_ context.Context, c Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.cases[c.ID]; ok {
		c.Active = old.Active
	}
	m.cases[c.ID] = &c
	return nil
}

func (m *memStore) SetActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return common.ErrCaseNotFound
	}
	c.Active = active
	return nil
}

func (m *memStore) AddItem(_ context.Context, it Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.CaseID] = append(m.items[it.CaseID], it)
	return nil
}

type fakeUpstream struct {
	calls   atomic.Int32
	items   func(ctx context.Context, caseID string) ([]byte, error)
	listing []byte
}

func (f *fakeUpstream) CaseItems(ctx context.Context, caseID string) ([]byte, error) {
	f.calls.Add(1)
	return f.items(ctx, caseID)
}

func (f *fakeUpstream) CaseListing(context.Context) ([]byte, error) {
	return f.listing, nil
}

func testConfig() *config.Config {
	return &config.Config{
		CatalogStarsPerTON: 50,
		CatalogTimeout:     200 * time.Millisecond,
		CatalogCacheTTL:    time.Minute,
		CatalogSyncLimit:   20,
	}
}

func TestGetCaseItemsPrefersLocalItems(t *testing.T) {
	store := newMemStore()
	store.items["c1"] = []Item{{ID: "i1", CaseID: "c1", Name: "Local", Rarity: RarityRare, Value: 10}}
	up := &fakeUpstream{items: func(context.Context, string) ([]byte, error) {
		t.Fatal("upstream не должен вызываться")
		return nil, nil
	}}

	svc := NewService(store, up, testConfig())
	set := svc.GetCaseItems(context.Background(), "c1")
	require.Equal(t, SourceLocal, set.Source)
	require.Equal(t, "Local", set.Items[0].Name)
}

func TestGetCaseItemsLocalReadErrorIsNotCached(t *testing.T) {
	store := newMemStore()
	store.items["c1"] = []Item{{ID: "i1", CaseID: "c1", Name: "Local", Rarity: RarityRare, Value: 10}}
	store.getErr = errors.New("connection reset by peer")
	up := &fakeUpstream{items: func(context.Context, string) ([]byte, error) {
		return []byte(`[{"id": "u1", "name": "Remote", "percent": 3}]`), nil
	}}
	svc := NewService(store, up, testConfig())

	set := svc.GetCaseItems(context.Background(), "c1")
	require.Equal(t, SourceUpstream, set.Source)

	// БД поднялась: набор берётся из локальных предметов, а не из кэша
	store.mu.Lock()
	store.getErr = nil
	store.mu.Unlock()

	set = svc.GetCaseItems(context.Background(), "c1")
	require.Equal(t, SourceLocal, set.Source)
	require.False(t, set.Cached)
	require.Equal(t, "Local", set.Items[0].Name)
}

func TestGetCaseItemsIgnoresCallerCancellation(t *testing.T) {
	store := newMemStore()
	store.items["c1"] = []Item{{ID: "i1", CaseID: "c1", Name: "Local", Rarity: RarityRare, Value: 10}}
	up := &fakeUpstream{items: func(context.Context, string) ([]byte, error) {
		t.Fatal("upstream не должен вызываться")
		return nil, nil
	}}
	svc := NewService(store, up, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	set := svc.GetCaseItems(ctx, "c1")
	require.Equal(t, SourceLocal, set.Source)
}

func TestGetCaseItemsFromUpstreamIsCached(t *testing.T) {
	store := newMemStore()
	up := &fakeUpstream{items: func(context.Context, string) ([]byte, error) {
		return []byte(`[{"id": "u1", "name": "Remote", "percent": 3}]`), nil
	}}
	svc := NewService(store, up, testConfig())
	now := time.Now()
	svc.now = func() time.Time { return now }

	set := svc.GetCaseItems(context.Background(), "c1")
	require.Equal(t, SourceUpstream, set.Source)
	require.False(t, set.Cached)
	require.Equal(t, RarityEpic, set.Items[0].Rarity)

	set = svc.GetCaseItems(context.Background(), "c1")
	require.True(t, set.Cached)
	require.Equal(t, int32(1), up.calls.Load())

	// После TTL набор загружается заново
	now = now.Add(2 * time.Minute)
	set = svc.GetCaseItems(context.Background(), "c1")
	require.False(t, set.Cached)
	require.Equal(t, int32(2), up.calls.Load())
}

func TestGetCaseItemsFallbackOnTimeout(t *testing.T) {
	up := &fakeUpstream{items: func(ctx context.Context, _ string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := NewService(newMemStore(), up, testConfig())

	start := time.Now()
	set := svc.GetCaseItems(context.Background(), "slow")
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, SourceFallback, set.Source)
	require.Equal(t, FallbackItems("slow"), set.Items)

	// Запасной набор не кэшируется: следующий запрос снова идёт в сервис
	set = svc.GetCaseItems(context.Background(), "slow")
	require.Equal(t, SourceFallback, set.Source)
	require.Equal(t, int32(2), up.calls.Load())
}

func TestGetCaseItemsFallbackOnGarbage(t *testing.T) {
	for name, body := range map[string]string{
		"html":  `<html>502</html>`,
		"empty": `{"items": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			up := &fakeUpstream{items: func(context.Context, string) ([]byte, error) {
				return []byte(body), nil
			}}
			svc := NewService(newMemStore(), up, testConfig())
			set := svc.GetCaseItems(context.Background(), "c")
			require.Equal(t, SourceFallback, set.Source)
			require.NotEmpty(t, set.Items)
		})
	}
}

func TestGetCaseItemsWithoutUpstream(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("db down")
	svc := NewService(store, nil, testConfig())

	set := svc.GetCaseItems(context.Background(), "c")
	require.Equal(t, SourceFallback, set.Source)
	require.Len(t, set.Items, 4)
}

func TestGetCaseItemsSharesConcurrentFetch(t *testing.T) {
	release := make(chan struct{})
	up := &fakeUpstream{items: func(context.Context, string) ([]byte, error) {
		<-release
		return []byte(`[{"id": "u1", "name": "Remote"}]`), nil
	}}
	cfg := testConfig()
	cfg.CatalogTimeout = 5 * time.Second
	svc := NewService(newMemStore(), up, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set := svc.GetCaseItems(context.Background(), "c")
			assert.Equal(t, "u1", set.Items[0].ID)
		}()
	}
	// Даём горутинам встать в ожидание общей загрузки
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.LessOrEqual(t, up.calls.Load(), int32(2))
}

func TestSyncCasesKeepsActiveFlag(t *testing.T) {
	store := newMemStore()
	store.cases["nft-box"] = &Case{ID: "nft-box", Name: "Old", Active: false}
	up := &fakeUpstream{listing: []byte(`{"results": [{"id": "Tf6QT0lsm", "cases": [
		{"name": "NFT Box", "translit_name": "nft-box", "tickets_price": 350},
		{"name": "Fresh", "translit_name": "fresh", "price": 75}
	]}]}`)}
	svc := NewService(store, up, testConfig())

	report, err := svc.SyncCases(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Fetched)
	require.Equal(t, 2, report.Upserted)

	c, err := svc.GetCase(context.Background(), "nft-box")
	require.NoError(t, err)
	require.Equal(t, "NFT Box", c.Name)
	require.False(t, c.Active)

	c, err = svc.GetCase(context.Background(), "fresh")
	require.NoError(t, err)
	require.True(t, c.Active)
	require.Equal(t, ledger.CurrencyStars, c.Currency)
	require.True(t, c.Price.Equal(decimal.NewFromInt(75)))
}

func TestSyncCasesRespectsLimit(t *testing.T) {
	up := &fakeUpstream{listing: []byte(`{"results": [{"cases": [
		{"name": "a"}, {"name": "b"}, {"name": "c"}
	]}]}`)}
	cfg := testConfig()
	cfg.CatalogSyncLimit = 2
	svc := NewService(newMemStore(), up, cfg)

	report, err := svc.SyncCases(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Upserted)
	require.Equal(t, 1, report.Skipped)
}

func TestAddItemInvalidatesCache(t *testing.T) {
	store := newMemStore()
	store.cases["c"] = &Case{ID: "c", Active: true}
	svc := NewService(store, nil, testConfig())
	ctx := context.Background()

	err := svc.AddItem(ctx, Item{ID: "x", CaseID: "c", Name: "X", Rarity: RarityEpic, Value: 5, Probability: 1})
	require.NoError(t, err)
	set := svc.GetCaseItems(ctx, "c")
	require.Equal(t, SourceLocal, set.Source)
	require.Len(t, set.Items, 1)
	require.True(t, svc.GetCaseItems(ctx, "c").Cached)

	err = svc.AddItem(ctx, Item{ID: "w", CaseID: "c", Name: "W", Rarity: RarityCommon, Value: 1, Probability: 3})
	require.NoError(t, err)
	set = svc.GetCaseItems(ctx, "c")
	require.False(t, set.Cached)
	require.Len(t, set.Items, 2)

	err = svc.AddItem(ctx, Item{ID: "y", CaseID: "c", Name: "Y", Rarity: "mythic"})
	require.ErrorIs(t, err, common.ErrInvalidRequest)

	err = svc.AddItem(ctx, Item{ID: "z", CaseID: "missing", Name: "Z", Rarity: RarityCommon})
	require.ErrorIs(t, err, common.ErrCaseNotFound)
}

func TestSetActive(t *testing.T) {
	store := newMemStore()
	store.cases["c"] = &Case{ID: "c", Active: true}
	svc := NewService(store, nil, testConfig())

	require.NoError(t, svc.SetActive(context.Background(), "c", false))
	active, err := svc.ListCases(context.Background(), true)
	require.NoError(t, err)
	require.Empty(t, active)

	require.ErrorIs(t, svc.SetActive(context.Background(), "nope", true), common.ErrCaseNotFound)
}
