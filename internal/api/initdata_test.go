package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testBotToken = "123456:TEST-token"

// buildInitData собирает initData так, как её подписывает Telegram.
func buildInitData(t *testing.T, token string, userID int64, authDate time.Time) string {
	t.Helper()
	user := fmt.Sprintf(`{"id":%d,"first_name":"Test","username":"tester"}`, userID)
	ts := strconv.FormatInt(authDate.Unix(), 10)
	dataCheck := "auth_date=" + ts + "\nquery_id=AAH\nuser=" + user

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(token))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(dataCheck))

	v := url.Values{}
	v.Set("query_id", "AAH")
	v.Set("user", user)
	v.Set("auth_date", ts)
	v.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return v.Encode()
}

func TestVerifyInitData(t *testing.T) {
	now := time.Now()
	raw := buildInitData(t, testBotToken, 42, now.Add(-time.Minute))

	data, err := VerifyInitData(raw, testBotToken, time.Hour, now)
	require.NoError(t, err)
	require.Equal(t, int64(42), data.UserID)
	require.Equal(t, "tester", data.Username)
}

func TestVerifyInitDataRejects(t *testing.T) {
	now := time.Now()
	valid := buildInitData(t, testBotToken, 42, now.Add(-time.Minute))

	tampered, err := url.ParseQuery(valid)
	require.NoError(t, err)
	tampered.Set("user", `{"id":43,"first_name":"Test","username":"tester"}`)

	tests := []struct {
		name  string
		raw   string
		token string
		age   time.Duration
		want  error
	}{
		{"missing", "", testBotToken, time.Hour, errInitDataMissing},
		{"tampered field", tampered.Encode(), testBotToken, time.Hour, errInitDataSignature},
		{"other bot", valid, "654321:OTHER", time.Hour, errInitDataSignature},
		{"stale auth_date", valid, testBotToken, 30 * time.Second, errInitDataExpired},
		{"no hash", "auth_date=1&user=%7B%7D", testBotToken, time.Hour, errInitDataSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyInitData(tt.raw, tt.token, tt.age, now)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
