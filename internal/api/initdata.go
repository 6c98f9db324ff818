// Package api - HTTP API для Telegram Mini App и вебхука TON-шлюза.
// initdata.go проверяет подпись initData, которую Telegram передаёт в Mini App.
package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fastjson"
)

var (
	errInitDataMissing   = errors.New("initData отсутствует")
	errInitDataSignature = errors.New("неверная подпись initData")
	errInitDataExpired   = errors.New("initData устарела")
	errInitDataUser      = errors.New("в initData нет пользователя")
)

// InitData - проверенные данные запуска Mini App.
type InitData struct {
	UserID   int64
	Username string
	AuthDate time.Time
}

// VerifyInitData проверяет подпись и возраст initData.
// Ключ подписи: HMAC-SHA256("WebAppData", токен бота).
func VerifyInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	if raw == "" {
		return nil, errInitDataMissing
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, errInitDataSignature
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, errInitDataSignature
	}
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return nil, errInitDataSignature
	}
	if !hmac.Equal(signInitData(values, botToken), expected) {
		return nil, errInitDataSignature
	}

	ts, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, errInitDataSignature
	}
	authDate := time.Unix(ts, 0)
	if maxAge > 0 && now.Sub(authDate) > maxAge {
		return nil, errInitDataExpired
	}

	user, err := fastjson.Parse(values.Get("user"))
	if err != nil {
		return nil, errInitDataUser
	}
	id := user.GetInt64("id")
	if id <= 0 {
		return nil, errInitDataUser
	}
	return &InitData{
		UserID:   id,
		Username: string(user.GetStringBytes("username")),
		AuthDate: authDate,
	}, nil
}

// signInitData считает подпись: ключи кроме hash, по алфавиту, "key=value" через перевод строки.
func signInitData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return mac.Sum(nil)
}
