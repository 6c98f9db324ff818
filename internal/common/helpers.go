// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: ошибки и их коды, русская плюрализация, форматирование сумм, работа с временем.
package common

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// pluralForm выбирает форму слова по правилам русского языка.
//
//   - n%10==1 И n%100!=11 → one (1, 21, 101)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22)
//   - остальное → many (0, 5-20, 25-30, 100)
func pluralForm(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeStars возвращает правильную форму слова «звезда» для числа n.
//
// Примеры:
//
//	PluralizeStars(1)  → "звезда"
//	PluralizeStars(3)  → "звезды"
//	PluralizeStars(11) → "звёзд"
func PluralizeStars(n int64) string {
	return pluralForm(n, "звезда", "звезды", "звёзд")
}

// PluralizeCases возвращает правильную форму слова «кейс».
func PluralizeCases(n int64) string {
	return pluralForm(n, "кейс", "кейса", "кейсов")
}

// PluralizeItems возвращает правильную форму слова «предмет».
func PluralizeItems(n int64) string {
	return pluralForm(n, "предмет", "предмета", "предметов")
}

// FormatStars форматирует количество звёзд: FormatStars(2350) → "2 350 ⭐".
func FormatStars(n int64) string {
	return fmt.Sprintf("%s ⭐", FormatNumber(n))
}

// FormatTON форматирует сумму в TON без хвостовых нулей: "1.5 TON".
// Округляет до 4 знаков, больше в интерфейсе не показываем.
func FormatTON(d decimal.Decimal) string {
	return fmt.Sprintf("%s TON", d.Round(4).String())
}

// GetMoscowTime возвращает текущее время в часовом поясе Москвы (Europe/Moscow).
func GetMoscowTime() time.Time {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		// Если не удалось загрузить - используем UTC+3 вручную
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return time.Now().In(loc)
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" по Москве.
// Используется для отображения дат транзакций и выигрышей.
func FormatDateTime(t time.Time) string {
	return t.In(GetMoscowTime().Location()).Format("02.01.2006 15:04")
}
