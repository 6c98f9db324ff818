// Package common - errors.go определяет ошибки, которые используются во всех модулях.
// Эти ошибки позволяют обработчикам (бот и HTTP API) различать типы проблем
// и отдавать пользователю понятные сообщения и коды.
package common

import "errors"

// Ошибки леджера (звёзды, TON)
var (
	// ErrInsufficientBalance - на счёте не хватает средств для списания
	ErrInsufficientBalance = errors.New("недостаточно средств на счёте")
	// ErrInvalidAmount - некорректная сумма (отрицательная, дробные звёзды)
	ErrInvalidAmount = errors.New("некорректная сумма")
	// ErrInvalidCurrency - валюта не TON и не STARS
	ErrInvalidCurrency = errors.New("неизвестная валюта")
	// ErrUserNotFound - пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
	// ErrDuplicatePayment - платёж с таким внешним ID уже зачислен
	ErrDuplicatePayment = errors.New("платёж уже обработан")
)

// Ошибки открытия кейсов
var (
	// ErrInvalidRequest - запрос не прошёл валидацию
	ErrInvalidRequest = errors.New("некорректный запрос")
	// ErrCaseNotFound - кейс не найден
	ErrCaseNotFound = errors.New("кейс не найден")
	// ErrCaseInactive - кейс выключен и не продаётся
	ErrCaseInactive = errors.New("кейс недоступен")
	// ErrNoItems - пустой набор предметов, выбирать не из чего
	ErrNoItems = errors.New("в кейсе нет предметов")
	// ErrOpeningFailed - системная ошибка после списания (средства возвращены)
	ErrOpeningFailed = errors.New("не удалось открыть кейс, средства возвращены")
	// ErrUserBanned - пользователь заблокирован
	ErrUserBanned = errors.New("пользователь заблокирован")
)

// Ошибки инвентаря
var (
	// ErrItemNotFound - запись инвентаря не найдена
	ErrItemNotFound = errors.New("предмет не найден")
	// ErrNotOwner - предмет принадлежит другому пользователю
	ErrNotOwner = errors.New("предмет принадлежит другому пользователю")
	// ErrAlreadyGifted - предмет уже подарен
	ErrAlreadyGifted = errors.New("предмет уже подарен")
	// ErrSelfGift - попытка подарить предмет самому себе
	ErrSelfGift = errors.New("нельзя дарить самому себе")
)

// Ошибки платежей
var (
	// ErrInvalidPayload - payload инвойса не разобран или не совпадает с платежом
	ErrInvalidPayload = errors.New("некорректные данные платежа")
)

// Ошибки админки
var (
	// ErrNotAdmin - пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword - неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts - слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
)
