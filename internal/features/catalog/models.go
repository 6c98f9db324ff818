// Package catalog отдаёт кейсы и наборы предметов для открытия.
// Предметы берутся из локальной таблицы, из внешнего сервиса инвентаря
// или, если он недоступен, из фиксированного запасного набора.
// models.go описывает кейсы, предметы и редкости.
package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// Rarity - уровень редкости предмета, по возрастанию ценности.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Rarities - все редкости по возрастанию.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}

// ParseRarity разбирает редкость без учёта регистра.
func ParseRarity(s string) (Rarity, bool) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return r, true
	}
	return "", false
}

// Rank - порядковый номер редкости (common = 0).
func (r Rarity) Rank() int {
	for i, x := range Rarities {
		if x == r {
			return i
		}
	}
	return 0
}

// Emoji - значок редкости для сообщений бота.
func (r Rarity) Emoji() string {
	switch r {
	case RarityRare:
		return "🔷"
	case RarityEpic:
		return "🟣"
	case RarityLegendary:
		return "🌟"
	default:
		return "⚪"
	}
}

// Категории кейсов
const (
	CategoryFree    = "free"
	CategoryLimited = "limited"
	CategoryNFT     = "nft"
	CategoryMix     = "mix"
	CategoryAllIn   = "allin"
)

// Case - кейс, который можно купить.
type Case struct {
	ID        string          `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"category"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Currency  ledger.Currency `db:"currency" json:"currency"`
	ImageURL  string          `db:"image_url" json:"imageUrl,omitempty"`
	Active    bool            `db:"is_active" json:"active"`
	OpenCount int64           `db:"open_count" json:"openCount"`
	SyncedAt  *time.Time      `db:"synced_at" json:"-"`
	CreatedAt time.Time       `db:"created_at" json:"-"`
	UpdatedAt time.Time       `db:"updated_at" json:"-"`
}

// Item - канонический предмет после нормализации.
// Value - номинальная ценность в звёздах, Probability - вес из источника.
type Item struct {
	ID          string  `db:"id" json:"id"`
	CaseID      string  `db:"case_id" json:"caseId"`
	Name        string  `db:"name" json:"name"`
	ImageURL    string  `db:"image_url" json:"image,omitempty"`
	Rarity      Rarity  `db:"rarity" json:"rarity"`
	Value       int64   `db:"value" json:"value"`
	Probability float64 `db:"probability" json:"probability"`
}

// Source - откуда взят набор предметов.
type Source string

const (
	SourceLocal    Source = "local"
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
)

// ItemSet - набор предметов кейса. Items никогда не пуст.
type ItemSet struct {
	CaseID string
	Items  []Item
	Source Source
	Cached bool
}

// SyncReport - итог синхронизации каталога с внешним сервисом.
type SyncReport struct {
	Fetched  int
	Upserted int
	Skipped  int
}
