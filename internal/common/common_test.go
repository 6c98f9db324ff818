package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestPluralizeStars(t *testing.T) {
	cases := map[int64]string{
		0:   "звёзд",
		1:   "звезда",
		2:   "звезды",
		5:   "звёзд",
		11:  "звёзд",
		12:  "звёзд",
		21:  "звезда",
		22:  "звезды",
		111: "звёзд",
		-3:  "звезды",
	}
	for n, want := range cases {
		require.Equal(t, want, PluralizeStars(n), "n=%d", n)
	}
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "0", FormatNumber(0))
	require.Equal(t, "999", FormatNumber(999))
	require.Equal(t, "2 350", FormatNumber(2350))
	require.Equal(t, "1 000 005", FormatNumber(1000005))
	require.Equal(t, "-2 350", FormatNumber(-2350))
}

func TestFormatAmounts(t *testing.T) {
	require.Equal(t, "+100 звёзд", FormatStarsDelta(100))
	require.Equal(t, "-1 звезда", FormatStarsDelta(-1))
	require.Equal(t, "1 500 ⭐", FormatStars(1500))
	require.Equal(t, "1.5 TON", FormatTON(decimal.RequireFromString("1.50000000")))
}

func TestErrorCode(t *testing.T) {
	require.Equal(t, "", ErrorCode(nil))
	require.Equal(t, CodeInsufficientFunds, ErrorCode(fmt.Errorf("debit: %w", ErrInsufficientBalance)))
	require.Equal(t, CodeCaseNotFound, ErrorCode(ErrCaseNotFound))
	require.Equal(t, CodeCaseNotFound, ErrorCode(ErrCaseInactive))
	require.Equal(t, CodeInvalidRequest, ErrorCode(fmt.Errorf("quantity: %w", ErrInvalidRequest)))
	require.Equal(t, CodeInternalError, ErrorCode(errors.New("connection reset")))
	require.Equal(t, CodeInternalError, ErrorCode(ErrOpeningFailed))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	msg := PublicMessage(errors.New("pq: relation does not exist"))
	require.NotContains(t, msg, "relation")
	require.Equal(t, ErrOpeningFailed.Error(), PublicMessage(fmt.Errorf("x: %w", ErrOpeningFailed)))
	require.Equal(t, ErrCaseNotFound.Error(), PublicMessage(ErrCaseNotFound))
}
