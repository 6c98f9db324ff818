// Package opening проводит открытие кейса от проверки запроса до записи
// результата: списание, розыгрыш, инвентарь, аудит и возврат средств при сбое.
// models.go описывает состояния, записи аудита и результат открытия.
package opening

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"serotonyl.ru/gifts-bot/internal/features/catalog"
	"serotonyl.ru/gifts-bot/internal/features/inventory"
	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

// State - шаг открытия.
// Validated → Debited → Awarded → Recorded → Completed; Failed достижим до Recorded.
type State string

const (
	StateValidated State = "validated"
	StateDebited   State = "debited"
	StateAwarded   State = "awarded"
	StateRecorded  State = "recorded"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record - строка аудита case_openings, одна на выданный предмет.
// Не меняется после записи.
type Record struct {
	ID          uuid.UUID       `db:"id"`
	RequestID   uuid.UUID       `db:"request_id"`
	UserID      int64           `db:"user_id"`
	CaseID      string          `db:"case_id"`
	ItemID      string          `db:"item_id"`
	ItemName    string          `db:"item_name"`
	ItemRarity  catalog.Rarity  `db:"item_rarity"`
	ItemValue   int64           `db:"item_value"`
	Cost        decimal.Decimal `db:"cost"`
	Currency    ledger.Currency `db:"currency"`
	Roll        float64         `db:"roll"`
	TotalWeight float64         `db:"total_weight"`
	Strategy    string          `db:"strategy"`
	CreatedAt   time.Time       `db:"created_at"`
}

// Batch - всё, что пишется одной транзакцией после списания.
// Идентификаторы задаются заранее, поэтому повтор записи не создаёт дублей.
type Batch struct {
	RequestID uuid.UUID
	UserID    int64
	CaseID    string
	Records   []Record
	Entries   []inventory.Entry
}

// Outcome - один выданный предмет.
type Outcome struct {
	OpeningID uuid.UUID       `json:"openingId"`
	EntryID   uuid.UUID       `json:"inventoryId"`
	Item      catalog.Item    `json:"item"`
	Cost      decimal.Decimal `json:"cost"`
}

// Result - итог открытия.
type Result struct {
	RequestID uuid.UUID       `json:"requestId"`
	CaseID    string          `json:"caseId"`
	Currency  ledger.Currency `json:"currency"`
	TotalCost decimal.Decimal `json:"totalCost"`
	Outcomes  []Outcome       `json:"outcomes"`
	Balance   *ledger.Balance `json:"balance"`
	Source    catalog.Source  `json:"source"`
	State     State           `json:"state"`
}

// Stats - статистика открытий пользователя.
type Stats struct {
	UserID     int64           `json:"userId"`
	Openings   int64           `json:"openings"`
	SpentStars int64           `json:"spentStars"`
	SpentTON   decimal.Decimal `json:"spentTon"`
	ValueWon   int64           `json:"valueWon"`
	BestDrop   *Record         `json:"bestDrop,omitempty"`
}

// ReturnRatio - ценность выигрышей к потраченным звёздам.
func (s *Stats) ReturnRatio() float64 {
	if s.SpentStars <= 0 {
		return 0
	}
	return float64(s.ValueWon) / float64(s.SpentStars)
}
