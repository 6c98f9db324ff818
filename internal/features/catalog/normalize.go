// Package catalog - normalize.go приводит ответы внешнего сервиса инвентаря
// к каноническим Item и Case. Поля в ответах называются по-разному и бывают
// то числами, то строками, поэтому разбор идёт через fastjson, а не через
// структуры с тегами.
package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/valyala/fastjson"

	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Значения по умолчанию для полей, которых нет в ответе
const (
	DefaultItemValue       int64   = 50
	DefaultItemProbability float64 = 0.25
	DefaultCasePrice       int64   = 50
)

// ParseError - ответ внешнего сервиса не удалось разобрать.
type ParseError struct {
	CaseID string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "ошибка разбора каталога"
	if e.CaseID != "" {
		msg += " (кейс " + e.CaseID + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// RarityFromPercent переводит шанс выпадения в процентах в редкость:
// < 1% legendary, < 5% epic, < 15% rare, иначе common.
func RarityFromPercent(percent float64) Rarity {
	switch {
	case percent < 1:
		return RarityLegendary
	case percent < 5:
		return RarityEpic
	case percent < 15:
		return RarityRare
	default:
		return RarityCommon
	}
}

// TONToStars переводит цену в TON в звёзды по курсу, с округлением вниз.
func TONToStars(ton decimal.Decimal, starsPerTON int64) int64 {
	return ton.Mul(decimal.NewFromInt(starsPerTON)).Floor().IntPart()
}

// ParseCaseItems разбирает ответ /cases/<id>/. Предметы лежат либо в поле
// items, либо ответ сам является массивом. Пустой список - тоже ошибка:
// открыть кейс без предметов нельзя.
func ParseCaseItems(caseID string, data []byte, starsPerTON int64) ([]Item, error) {
	var p fastjson.Parser
	root, err := p.ParseBytes(data)
	if err != nil {
		return nil, &ParseError{CaseID: caseID, Reason: "некорректный JSON", Err: err}
	}

	var raw []*fastjson.Value
	switch root.Type() {
	case fastjson.TypeArray:
		raw, _ = root.Array()
	case fastjson.TypeObject:
		items := root.Get("items")
		if items == nil || items.Type() != fastjson.TypeArray {
			return nil, &ParseError{CaseID: caseID, Reason: "нет массива items"}
		}
		raw, _ = items.Array()
	default:
		return nil, &ParseError{CaseID: caseID, Reason: "ожидался объект или массив, получено " + root.Type().String()}
	}

	out := make([]Item, 0, len(raw))
	for idx, v := range raw {
		if v.Type() != fastjson.TypeObject {
			continue
		}
		out = append(out, normalizeItem(caseID, idx, v, starsPerTON))
	}
	if len(out) == 0 {
		return nil, &ParseError{CaseID: caseID, Reason: "в ответе нет предметов"}
	}
	return out, nil
}

func normalizeItem(caseID string, idx int, v *fastjson.Value, starsPerTON int64) Item {
	it := Item{CaseID: caseID}

	it.ID = stringField(v, "item_id", "id")
	if it.ID == "" {
		it.ID = fmt.Sprintf("%s_%d", caseID, idx)
	}

	it.Name = stringField(v, "name", "title")
	if it.Name == "" {
		it.Name = fmt.Sprintf("Item %d", idx+1)
	}

	it.ImageURL = stringField(v, "image", "image_url", "photo")

	// Ценность: цена в звёздах, затем цена в TON по курсу, затем value
	switch {
	case positive(v, "price"):
		it.Value = int64(math.Floor(numberOr(v, 0, "price")))
	case positive(v, "price_ton"):
		ton, _ := decimal.NewFromString(stringField(v, "price_ton"))
		it.Value = TONToStars(ton, starsPerTON)
	case positive(v, "value"):
		it.Value = int64(math.Floor(numberOr(v, 0, "value")))
	default:
		it.Value = DefaultItemValue
	}

	// Редкость и вес: percent главнее явных полей. Нулевой percent
	// считается отсутствующим, иначе он дал бы legendary
	if percent, ok := numberField(v, "percent", "chance"); ok && percent > 0 {
		it.Rarity = RarityFromPercent(percent)
		it.Probability = percent / 100
	} else {
		it.Rarity = RarityCommon
		if r, ok := ParseRarity(stringField(v, "rarity")); ok {
			it.Rarity = r
		}
		it.Probability = DefaultItemProbability
		if p, ok := numberField(v, "probability"); ok && p >= 0 {
			it.Probability = p
		}
	}
	return it
}

// ParseCaseListing разбирает ответ /cases/category_and_cases/:
// results[] - категории, в каждой cases[].
func ParseCaseListing(data []byte) ([]Case, error) {
	var p fastjson.Parser
	root, err := p.ParseBytes(data)
	if err != nil {
		return nil, &ParseError{Reason: "некорректный JSON", Err: err}
	}

	results := root.GetArray("results")
	if results == nil {
		return nil, &ParseError{Reason: "нет массива results"}
	}

	var out []Case
	seen := make(map[string]bool)
	for _, category := range results {
		parentCategory := stringField(category, "id", "category_id")
		for _, v := range category.GetArray("cases") {
			c, ok := normalizeCase(v, parentCategory)
			if !ok || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

func normalizeCase(v *fastjson.Value, parentCategory string) (Case, bool) {
	if v.Type() != fastjson.TypeObject {
		return Case{}, false
	}

	c := Case{Currency: ledger.CurrencyStars, Active: true}
	c.Name = stringField(v, "name")
	c.ID = stringField(v, "translit_name")
	if c.ID == "" {
		c.ID = slug(c.Name)
	}
	if c.ID == "" {
		return Case{}, false
	}
	if c.Name == "" {
		c.Name = c.ID
	}

	switch {
	case positive(v, "tickets_price"):
		c.Price = decimal.NewFromFloat(numberOr(v, 0, "tickets_price")).Floor()
	case positive(v, "price"):
		c.Price = decimal.NewFromFloat(numberOr(v, 0, "price")).Floor()
	default:
		c.Price = decimal.NewFromInt(DefaultCasePrice)
	}

	categoryID := stringField(v, "category_id")
	if categoryID == "" {
		categoryID = parentCategory
	}
	c.Category = CategoryFromUpstream(categoryID)
	c.ImageURL = stringField(v, "image", "image_url", "photo")
	return c, true
}

// upstreamCategories - id категорий внешнего сервиса.
var upstreamCategories = map[string]string{
	"Fi2qyoOjP": CategoryFree,
	"Rj8HhFxPa": CategoryLimited,
	"Oq1B6mrTC": CategoryLimited,
	"Tf6QT0lsm": CategoryNFT,
	"Jr9jQbSYq": CategoryNFT,
	"No5F34LaK": CategoryMix,
	"Ju2e5dVmS": CategoryAllIn,
}

// CategoryFromUpstream переводит id категории внешнего сервиса в нашу.
// Неизвестные категории попадают в mix.
func CategoryFromUpstream(id string) string {
	if c, ok := upstreamCategories[id]; ok {
		return c
	}
	return CategoryMix
}

// stringField возвращает первое непустое поле. Числа отдаются как текст.
func stringField(v *fastjson.Value, keys ...string) string {
	for _, k := range keys {
		f := v.Get(k)
		if f == nil {
			continue
		}
		switch f.Type() {
		case fastjson.TypeString:
			if s := strings.TrimSpace(string(f.GetStringBytes())); s != "" {
				return s
			}
		case fastjson.TypeNumber:
			return f.String()
		}
	}
	return ""
}

// numberField возвращает первое поле, которое является числом или строкой с числом.
func numberField(v *fastjson.Value, keys ...string) (float64, bool) {
	for _, k := range keys {
		f := v.Get(k)
		if f == nil {
			continue
		}
		switch f.Type() {
		case fastjson.TypeNumber:
			n, err := f.Float64()
			if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				return n, true
			}
		case fastjson.TypeString:
			n, err := strconv.ParseFloat(strings.TrimSpace(string(f.GetStringBytes())), 64)
			if err == nil && !math.IsNaN(n) && !math.IsInf(n, 0) {
				return n, true
			}
		}
	}
	return 0, false
}

func numberOr(v *fastjson.Value, def float64, keys ...string) float64 {
	if n, ok := numberField(v, keys...); ok {
		return n
	}
	return def
}

func positive(v *fastjson.Value, key string) bool {
	n, ok := numberField(v, key)
	return ok && n > 0
}

// slug делает id кейса из имени: нижний регистр, пробелы в дефисы.
func slug(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "-")
}
