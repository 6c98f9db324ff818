package payments

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/config"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
	"serotonyl.ru/gifts-bot/internal/features/ledger/ledgertest"
)

const rawAddr = "0:83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func newService(t *testing.T) (*Service, *ledgertest.Store) {
	t.Helper()
	cfg := &config.Config{
		FeaturePaymentsEnabled: true,
		PaymentsMinStars:       1,
		PaymentsMaxStars:       1000,
		LedgerAutoCreateUsers:  true,
	}
	store := ledgertest.New()
	svc := NewService(ledger.NewService(store, cfg), cfg)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return svc, store
}

func TestPayloadRoundTrip(t *testing.T) {
	svc, _ := newService(t)
	p, err := svc.NewPayload(42, 250)
	require.NoError(t, err)
	require.Equal(t, "stars_42_250_1700000000", p.String())

	parsed, err := ParsePayload(p.String())
	require.NoError(t, err)
	require.Equal(t, int64(42), parsed.UserID)
	require.Equal(t, int64(250), parsed.Amount)

	for _, bad := range []string{"", "stars_42_250", "gift_42_250_1", "stars_x_250_1", "stars_42_-5_1"} {
		_, err := ParsePayload(bad)
		require.ErrorIs(t, err, common.ErrInvalidPayload, bad)
	}
}

func TestNewPayloadLimits(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.NewPayload(42, 0)
	require.ErrorIs(t, err, common.ErrInvalidAmount)
	_, err = svc.NewPayload(42, 1001)
	require.ErrorIs(t, err, common.ErrInvalidAmount)
	_, err = svc.NewPayload(0, 10)
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}

func TestCheckPreCheckout(t *testing.T) {
	svc, _ := newService(t)
	payload := "stars_42_250_1700000000"

	require.NoError(t, svc.CheckPreCheckout(PreCheckout{PayerID: 42, Currency: "XTR", TotalAmount: 250, Payload: payload}))

	cases := map[string]PreCheckout{
		"wrong currency": {PayerID: 42, Currency: "USD", TotalAmount: 250, Payload: payload},
		"wrong amount":   {PayerID: 42, Currency: "XTR", TotalAmount: 25, Payload: payload},
		"wrong payer":    {PayerID: 43, Currency: "XTR", TotalAmount: 250, Payload: payload},
		"bad payload":    {PayerID: 42, Currency: "XTR", TotalAmount: 250, Payload: "nope"},
	}
	for name, q := range cases {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, svc.CheckPreCheckout(q), common.ErrInvalidPayload)
		})
	}
}

func TestCompleteStarsPaymentCreditsOnce(t *testing.T) {
	svc, store := newService(t)
	store.Seed(42, decimal.Zero, 10)
	pay := StarsPayment{PayerID: 42, Currency: "XTR", TotalAmount: 250, Payload: "stars_42_250_1700000000", ChargeID: "ch_1"}

	b, err := svc.CompleteStarsPayment(context.Background(), pay)
	require.NoError(t, err)
	require.Equal(t, int64(260), b.Stars)

	_, err = svc.CompleteStarsPayment(context.Background(), pay)
	require.ErrorIs(t, err, common.ErrDuplicatePayment)

	b, err = store.GetBalance(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, int64(260), b.Stars)

	entries := store.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "tg:ch_1", entries[0].ExternalID)
}

func TestCompleteStarsPaymentRequiresChargeID(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CompleteStarsPayment(context.Background(), StarsPayment{
		PayerID: 42, Currency: "XTR", TotalAmount: 250, Payload: "stars_42_250_1700000000",
	})
	require.ErrorIs(t, err, common.ErrInvalidPayload)
}

func TestDepositTON(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	b, err := svc.DepositTON(ctx, TONDeposit{UserID: 7, Amount: decimal.RequireFromString("1.5"), TxHash: "abc", Sender: rawAddr})
	require.NoError(t, err)
	require.True(t, b.TON.Equal(decimal.RequireFromString("1.5")))
	// Счёт неизвестного пользователя создаётся лениво
	require.Equal(t, int64(0), b.Stars)

	_, err = svc.DepositTON(ctx, TONDeposit{UserID: 7, Amount: decimal.NewFromInt(1), TxHash: "abc"})
	require.ErrorIs(t, err, common.ErrDuplicatePayment)

	_, err = svc.DepositTON(ctx, TONDeposit{UserID: 7, Amount: decimal.NewFromInt(-1), TxHash: "def"})
	require.ErrorIs(t, err, common.ErrInvalidAmount)

	_, err = svc.DepositTON(ctx, TONDeposit{UserID: 7, Amount: decimal.NewFromInt(1), TxHash: "ghi", Sender: "not-an-address"})
	require.ErrorIs(t, err, common.ErrInvalidRequest)

	var deposit ledger.Entry
	for _, e := range store.Entries() {
		if e.Type == ledger.TxDeposit {
			deposit = e
		}
	}
	require.Equal(t, "ton:abc", deposit.ExternalID)
	require.True(t, strings.Contains(deposit.Description, "EQ"), deposit.Description)
}

func TestNormalizeAddress(t *testing.T) {
	human, err := NormalizeAddress(rawAddr)
	require.NoError(t, err)
	require.Len(t, human, 48)

	again, err := NormalizeAddress(human)
	require.NoError(t, err)
	require.Equal(t, human, again)
}

func TestPaymentsDisabled(t *testing.T) {
	svc, _ := newService(t)
	svc.enabled = false
	_, err := svc.NewPayload(42, 10)
	require.ErrorIs(t, err, common.ErrInvalidRequest)
}
