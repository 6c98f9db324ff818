// Package inventory - журнал выигранных предметов.
// Записи только добавляются; подарок помечает запись, но не удаляет её.
package inventory

import (
	"time"

	"github.com/google/uuid"

	"serotonyl.ru/gifts-bot/internal/features/catalog"
)

// Entry - предмет во владении пользователя.
// Название, картинка, редкость и ценность копируются из каталога на момент
// выигрыша, поэтому правка каталога не меняет историю.
type Entry struct {
	ID         uuid.UUID      `db:"id"`
	UserID     int64          `db:"user_id"`
	ItemID     string         `db:"item_id"`
	CaseID     string         `db:"case_id"`
	OpeningID  *uuid.UUID     `db:"opening_id"`
	ItemName   string         `db:"item_name"`
	ItemImage  string         `db:"item_image"`
	ItemRarity catalog.Rarity `db:"item_rarity"`
	ItemValue  int64          `db:"item_value"`
	IsGifted   bool           `db:"is_gifted"`
	GiftedTo   *int64         `db:"gifted_to"`
	GiftedAt   *time.Time     `db:"gifted_at"`
	ObtainedAt time.Time      `db:"obtained_at"`
}

// NewEntry создаёт запись из предмета каталога.
func NewEntry(userID int64, item catalog.Item, openingID *uuid.UUID, at time.Time) Entry {
	return Entry{
		ID:         uuid.New(),
		UserID:     userID,
		ItemID:     item.ID,
		CaseID:     item.CaseID,
		OpeningID:  openingID,
		ItemName:   item.Name,
		ItemImage:  item.ImageURL,
		ItemRarity: item.Rarity,
		ItemValue:  item.Value,
		ObtainedAt: at,
	}
}

// LeaderboardRow - строка таблицы лидеров по ценности коллекции.
type LeaderboardRow struct {
	UserID     int64  `db:"user_id"`
	Username   string `db:"username"`
	FirstName  string `db:"first_name"`
	Items      int64  `db:"items"`
	TotalValue int64  `db:"total_value"`
}

// DisplayName - имя для таблицы лидеров.
func (r LeaderboardRow) DisplayName() string {
	if r.Username != "" {
		return "@" + r.Username
	}
	if r.FirstName != "" {
		return r.FirstName
	}
	return "Игрок"
}
