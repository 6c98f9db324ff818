//go:build integration

package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gifts-bot/internal/common"
)

// Запуск: GIFTS_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/features/ledger/
const testDatabaseEnv = "GIFTS_TEST_DATABASE_URL"

const testSchemaSQL = `
CREATE TABLE members (
    user_id BIGINT PRIMARY KEY
);
CREATE TABLE balances (
    user_id BIGINT PRIMARY KEY REFERENCES members(user_id),
    ton_balance NUMERIC(18,8) NOT NULL DEFAULT 0 CHECK (ton_balance >= 0),
    stars_balance BIGINT NOT NULL DEFAULT 0 CHECK (stars_balance >= 0),
    created_at TIMESTAMP DEFAULT NOW(),
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE TABLE transactions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES members(user_id),
    type VARCHAR(32) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    amount NUMERIC(18,8) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'completed',
    external_id VARCHAR(255),
    reference VARCHAR(64),
    description TEXT,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE UNIQUE INDEX idx_transactions_external_id
    ON transactions(external_id) WHERE external_id IS NOT NULL;
`

// newTestRepository поднимает репозиторий в отдельной схеме и удаляет её после теста.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s не задан", testDatabaseEnv)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := fmt.Sprintf("ledger_test_%d", time.Now().UnixNano())
	admin, err := pgx.Connect(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		_ = admin.Close(context.Background())
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 16
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, testSchemaSQL)
	require.NoError(t, err)
	return NewRepository(pool)
}

func starsDebit(userID, amount int64) Mutation {
	return Mutation{UserID: userID, Currency: CurrencyStars, Amount: decimal.NewFromInt(amount), Type: TxSpend}
}

func TestRepositoryConcurrentDebits(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateAccount(ctx, 1, 50)
	require.NoError(t, err)
	require.True(t, created)

	const workers = 10
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Debit(ctx, starsDebit(1, 10))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, common.ErrInsufficientBalance):
				rejected++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 5, ok)
	require.Equal(t, 5, rejected)

	b, err := repo.GetBalance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), b.Stars)

	// Бонус и ровно пять списаний
	history, err := repo.History(ctx, 1, 100)
	require.NoError(t, err)
	require.Len(t, history, 6)
}

func TestRepositoryDebitRejectsWithoutSideEffects(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Debit(ctx, starsDebit(2, 10))
	require.ErrorIs(t, err, common.ErrUserNotFound)

	_, err = repo.CreateAccount(ctx, 2, 10)
	require.NoError(t, err)
	_, err = repo.Debit(ctx, starsDebit(2, 11))
	require.ErrorIs(t, err, common.ErrInsufficientBalance)

	b, err := repo.GetBalance(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(10), b.Stars)
	history, err := repo.History(ctx, 2, 100)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestRepositoryCreditDuplicateExternalID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, 3, 0)
	require.NoError(t, err)

	m := Mutation{
		UserID:     3,
		Currency:   CurrencyTON,
		Amount:     decimal.RequireFromString("1.5"),
		Type:       TxDeposit,
		ExternalID: "ton:abc",
	}
	b, err := repo.Credit(ctx, m)
	require.NoError(t, err)
	require.True(t, b.TON.Equal(decimal.RequireFromString("1.5")))

	// Повтор откатывается вместе с начислением
	_, err = repo.Credit(ctx, m)
	require.ErrorIs(t, err, common.ErrDuplicatePayment)

	b, err = repo.GetBalance(ctx, 3)
	require.NoError(t, err)
	require.True(t, b.TON.Equal(decimal.RequireFromString("1.5")))
}
