package opening

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/ledger/ledgertest"
	"serotonyl.ru/gifts-bot/internal/features/reward"
)

type fakeCatalog struct {
	cases map[string]*catalog.Case
	set   catalog.ItemSet
}

func (f *fakeCatalog) GetCase(_ context.Context, id string) (*catalog.Case, error) {
	c, ok := f.cases[id]
	if !ok {
		return nil, common.ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCatalog) GetCaseItems(_ context.Context, caseID string) catalog.ItemSet {
	set := f.set
	set.CaseID = caseID
	return set
}

type fakeRecorder struct {
	mu       sync.Mutex
	batches  []*Batch
	calls    int
	failures int // сколько первых попыток завершить ошибкой, -1 - все

	onRecord func()
}

func (f *fakeRecorder) Record(ctx context.Context, b *Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onRecord != nil {
		f.onRecord()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failures < 0 || f.calls <= f.failures {
		return errors.New("connection reset")
	}
	f.batches = append(f.batches, b)
	return nil
}

func (f *fakeRecorder) Stats(context.Context, int64) (*Stats, error) {
	return &Stats{}, nil
}

func (f *fakeRecorder) records() []Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, b := range f.batches {
		out = append(out, b.Records...)
	}
	return out
}

// ctxLedger отказывает, если контекст вызова отменён, как настоящий пул.
type ctxLedger struct {
	*ledger.Service
}

func (l ctxLedger) Credit(ctx context.Context, m ledger.Mutation) (*ledger.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.Service.Credit(ctx, m)
}

// lostAckLedger проводит первое начисление, но возвращает ошибку,
// как будто ответ БД потерялся после коммита.
type lostAckLedger struct {
	ctxLedger
	mu      sync.Mutex
	credits int
}

func (l *lostAckLedger) Credit(ctx context.Context, m ledger.Mutation) (*ledger.Balance, error) {
	l.mu.Lock()
	l.credits++
	first := l.credits == 1
	l.mu.Unlock()

	b, err := l.ctxLedger.Credit(ctx, m)
	if first && err == nil {
		return nil, context.DeadlineExceeded
	}
	return b, err
}

type fakeBans map[int64]bool

func (f fakeBans) IsBanned(_ context.Context, userID int64) (bool, error) {
	return f[userID], nil
}

type env struct {
	svc      *Service
	store    *ledgertest.Store
	recorder *fakeRecorder
	catalog  *fakeCatalog
}

func testConfig() *config.Config {
	return &config.Config{
		OpeningMaxQuantity:    10,
		OpeningPersistTimeout: time.Second,
		OpeningPersistRetries: 3,
		OpeningRefundRetries:  3,
	}
}

func testItems() []catalog.Item {
	return []catalog.Item{
		{ID: "a", Name: "A", Rarity: catalog.RarityCommon, Value: 10},
		{ID: "b", Name: "B", Rarity: catalog.RarityRare, Value: 40},
		{ID: "c", Name: "C", Rarity: catalog.RarityEpic, Value: 120},
		{ID: "d", Name: "D", Rarity: catalog.RarityLegendary, Value: 500},
	}
}

func newEnv(t *testing.T, source reward.Source) *env {
	t.Helper()
	cfg := testConfig()
	store := ledgertest.New()
	cat := &fakeCatalog{
		cases: map[string]*catalog.Case{
			"basic": {ID: "basic", Name: "Basic", Price: decimal.NewFromInt(50), Currency: ledger.CurrencyStars, Active: true},
			"ton":   {ID: "ton", Name: "Ton", Price: decimal.RequireFromString("0.5"), Currency: ledger.CurrencyTON, Active: true},
			"off":   {ID: "off", Name: "Off", Price: decimal.NewFromInt(50), Currency: ledger.CurrencyStars, Active: false},
		},
		set: catalog.ItemSet{Items: testItems(), Source: catalog.SourceLocal},
	}
	rec := &fakeRecorder{}
	svc := NewService(
		ctxLedger{ledger.NewService(store, cfg)},
		cat,
		reward.NewSelector(reward.DefaultRarityWeights, source),
		rec,
		fakeBans{666: true},
		cfg,
	)
	svc.retryDelay = 0
	return &env{svc: svc, store: store, recorder: rec, catalog: cat}
}

func (e *env) stars(t *testing.T, userID int64) int64 {
	t.Helper()
	b, err := e.store.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return b.Stars
}

func TestOpenCaseHappyPath(t *testing.T) {
	e := newEnv(t, reward.Fixed(49))
	e.store.Seed(1, decimal.Zero, 100)

	res, err := e.svc.OpenCase(context.Background(), 1, "basic", 1)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	require.Equal(t, int64(50), res.Balance.Stars)
	require.Equal(t, int64(50), e.stars(t, 1))
	require.Len(t, res.Outcomes, 1)
	require.Equal(t, "a", res.Outcomes[0].Item.ID)

	records := e.recorder.records()
	require.Len(t, records, 1)
	require.True(t, records[0].Cost.Equal(decimal.NewFromInt(50)))
	require.Equal(t, ledger.CurrencyStars, records[0].Currency)
	require.Equal(t, 49.0, records[0].Roll)
	require.Equal(t, 100.0, records[0].TotalWeight)
	require.Equal(t, reward.StrategyRarity, records[0].Strategy)

	batch := e.recorder.batches[0]
	require.Len(t, batch.Entries, 1)
	require.Equal(t, records[0].ID, *batch.Entries[0].OpeningID)
	require.Equal(t, "basic", batch.Entries[0].CaseID)

	// Списание в журнале ссылается на запрос
	entries := e.store.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, ledger.TxSpend, entries[0].Type)
	require.Equal(t, res.RequestID.String(), entries[0].Reference)
}

func TestOpenCaseDebitsOncePerRequest(t *testing.T) {
	e := newEnv(t, reward.Fixed(99))
	e.store.Seed(1, decimal.Zero, 200)

	res, err := e.svc.OpenCase(context.Background(), 1, "basic", 3)
	require.NoError(t, err)
	require.True(t, res.TotalCost.Equal(decimal.NewFromInt(150)))
	require.Equal(t, int64(50), e.stars(t, 1))
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		require.Equal(t, "d", o.Item.ID)
	}

	require.Len(t, e.store.Entries(), 1)
	records := e.recorder.records()
	require.Len(t, records, 3)
	for _, r := range records {
		require.Equal(t, res.RequestID, r.RequestID)
	}
}

func TestOpenCaseInTON(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.RequireFromString("1.2"), 0)

	res, err := e.svc.OpenCase(context.Background(), 1, "ton", 2)
	require.NoError(t, err)
	require.Equal(t, ledger.CurrencyTON, res.Currency)
	require.True(t, res.Balance.TON.Equal(decimal.RequireFromString("0.2")), res.Balance.TON.String())
}

func TestOpenCaseInsufficientFunds(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 10)

	_, err := e.svc.OpenCase(context.Background(), 1, "basic", 1)
	require.ErrorIs(t, err, common.ErrInsufficientBalance)
	require.Equal(t, common.CodeInsufficientFunds, common.ErrorCode(err))

	require.Equal(t, int64(10), e.stars(t, 1))
	require.Empty(t, e.store.Entries())
	require.Zero(t, e.recorder.calls)
}

func TestOpenCaseValidation(t *testing.T) {
	cases := []struct {
		name     string
		userID   int64
		caseID   string
		quantity int
		want     error
	}{
		{"no user", 0, "basic", 1, common.ErrInvalidRequest},
		{"no case", 1, " ", 1, common.ErrInvalidRequest},
		{"zero quantity", 1, "basic", 0, common.ErrInvalidRequest},
		{"too many", 1, "basic", 11, common.ErrInvalidRequest},
		{"unknown case", 1, "nope", 1, common.ErrCaseNotFound},
		{"inactive case", 1, "off", 1, common.ErrCaseInactive},
		{"banned", 666, "basic", 1, common.ErrUserBanned},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.store.Seed(1, decimal.Zero, 1000)
			e.store.Seed(666, decimal.Zero, 1000)

			_, err := e.svc.OpenCase(context.Background(), tc.userID, tc.caseID, tc.quantity)
			require.ErrorIs(t, err, tc.want)
			require.Empty(t, e.store.Entries())
			require.Zero(t, e.recorder.calls)
		})
	}
}

func TestOpenCaseConcurrentSameUser(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 50)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.OpenCase(context.Background(), 1, "basic", 1)
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("неожиданная ошибка: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, insufficient)
	require.Zero(t, e.stars(t, 1))
	require.Len(t, e.recorder.records(), 1)
}

func TestOpenCaseRetriesPersistence(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 100)
	e.recorder.failures = 2

	_, err := e.svc.OpenCase(context.Background(), 1, "basic", 1)
	require.NoError(t, err)
	require.Equal(t, 3, e.recorder.calls)
	require.Equal(t, int64(50), e.stars(t, 1))
	require.Len(t, e.recorder.records(), 1)
}

func TestOpenCaseRefundsWhenPersistenceFails(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 100)
	e.recorder.failures = -1

	_, err := e.svc.OpenCase(context.Background(), 1, "basic", 2)
	require.ErrorIs(t, err, common.ErrOpeningFailed)
	require.Equal(t, common.ErrOpeningFailed.Error(), common.PublicMessage(err))

	require.Equal(t, int64(100), e.stars(t, 1))
	require.Empty(t, e.recorder.records())
	require.Equal(t, 3, e.recorder.calls)

	entries := e.store.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, ledger.TxSpend, entries[0].Type)
	require.Equal(t, ledger.TxRefund, entries[1].Type)
	require.Equal(t, entries[0].Reference, entries[1].Reference)
	require.True(t, entries[1].Amount.Equal(decimal.NewFromInt(100)))
}

func TestOpenCaseRefundSurvivesCancelledRequest(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 100)
	e.recorder.failures = -1

	ctx, cancel := context.WithCancel(context.Background())
	// Клиент уходит, пока идёт запись результата
	e.recorder.onRecord = cancel

	_, err := e.svc.OpenCase(ctx, 1, "basic", 1)
	require.ErrorIs(t, err, common.ErrOpeningFailed)
	require.Equal(t, int64(100), e.stars(t, 1))
}

func TestOpenCaseCancelledRequestStillRecords(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 100)

	ctx, cancel := context.WithCancel(context.Background())
	e.recorder.onRecord = cancel

	_, err := e.svc.OpenCase(ctx, 1, "basic", 1)
	require.NoError(t, err)
	require.Len(t, e.recorder.records(), 1)
	require.Equal(t, int64(50), e.stars(t, 1))
}

func TestOpenCaseRefundFailure(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 100)
	e.recorder.failures = -1
	e.store.FailCredits = 100
	e.store.FailErr = errors.New("db down")

	_, err := e.svc.OpenCase(context.Background(), 1, "basic", 1)
	require.ErrorIs(t, err, common.ErrOpeningFailed)
	require.Contains(t, err.Error(), "возврат не удался")
	// Возврат не прошёл: списание осталось, случай уходит в лог как критический
	require.Equal(t, int64(50), e.stars(t, 1))
}

func TestOpenCaseRefundRetryDoesNotCreditTwice(t *testing.T) {
	e := newEnv(t, nil)
	e.store.Seed(1, decimal.Zero, 100)
	e.recorder.failures = -1
	l := &lostAckLedger{ctxLedger: e.svc.ledger.(ctxLedger)}
	e.svc.ledger = l

	_, err := e.svc.OpenCase(context.Background(), 1, "basic", 1)
	require.ErrorIs(t, err, common.ErrOpeningFailed)
	require.NotContains(t, err.Error(), "возврат не удался")

	require.Equal(t, 2, l.credits)
	require.Equal(t, int64(100), e.stars(t, 1))

	var refunds []ledger.Entry
	for _, entry := range e.store.Entries() {
		if entry.Type == ledger.TxRefund {
			refunds = append(refunds, entry)
		}
	}
	require.Len(t, refunds, 1)
	require.Equal(t, "refund:"+refunds[0].Reference, refunds[0].ExternalID)
}

func TestOpenCaseUsesFallbackItems(t *testing.T) {
	e := newEnv(t, reward.Fixed(0))
	e.store.Seed(1, decimal.Zero, 100)
	e.catalog.set = catalog.ItemSet{Items: catalog.FallbackItems("basic"), Source: catalog.SourceFallback}

	res, err := e.svc.OpenCase(context.Background(), 1, "basic", 1)
	require.NoError(t, err)
	require.Equal(t, catalog.SourceFallback, res.Source)
	assert.Equal(t, "basic", res.Outcomes[0].Item.CaseID)
}

func TestStatsReturnRatio(t *testing.T) {
	require.Zero(t, (&Stats{}).ReturnRatio())
	require.InDelta(t, 1.5, (&Stats{SpentStars: 100, ValueWon: 150}).ReturnRatio(), 1e-9)
}

func TestParseOpenArgs(t *testing.T) {
	id, n, err := ParseOpenArgs("basic")
	require.NoError(t, err)
	require.Equal(t, "basic", id)
	require.Equal(t, 1, n)

	_, n, err = ParseOpenArgs("basic 5")
	require.NoError(t, err)
	require.Equal(t, 5, n)

	_, _, err = ParseOpenArgs("basic five")
	require.Error(t, err)
	_, _, err = ParseOpenArgs("")
	require.Error(t, err)
}

func TestFormatResult(t *testing.T) {
	text := FormatResult(&Result{
		Currency:  ledger.CurrencyStars,
		TotalCost: decimal.NewFromInt(50),
		Outcomes:  []Outcome{{Item: catalog.Item{Name: "Cake", Rarity: catalog.RarityRare, Value: 100}}},
		Balance:   &ledger.Balance{Stars: 50},
	})
	require.Contains(t, text, "🔷 Cake · 100 ⭐")
	require.Contains(t, text, "Списано: 50 ⭐")
	require.Contains(t, text, "Баланс: 50 ⭐")
}
