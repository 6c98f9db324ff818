package reward

import (
	"fmt"
	"math"
	"strings"

	"serotonyl.ru/gifts-bot/internal/features/catalog"
)

// Имена стратегий (хранятся в case_openings.strategy)
const (
	StrategyRarity      = "rarity"
	StrategyProbability = "probability"
)

// Strategy задаёт вес предмета при розыгрыше.
type Strategy interface {
	Name() string
	Weight(item catalog.Item) float64
}

// RarityWeights - вес по редкости, поле probability предмета игнорируется.
type RarityWeights map[catalog.Rarity]float64

// DefaultRarityWeights - таблица common=50, rare=30, epic=15, legendary=5.
var DefaultRarityWeights = RarityWeights{
	catalog.RarityCommon:    50,
	catalog.RarityRare:      30,
	catalog.RarityEpic:      15,
	catalog.RarityLegendary: 5,
}

func (RarityWeights) Name() string { return StrategyRarity }

// Weight возвращает вес редкости. Неизвестная редкость считается common.
func (w RarityWeights) Weight(item catalog.Item) float64 {
	if v, ok := w[item.Rarity]; ok {
		return v
	}
	return w[catalog.RarityCommon]
}

// ItemProbability - вес берётся из поля probability самого предмета.
// Значения не обязаны давать в сумме единицу: это относительные веса.
type ItemProbability struct{}

func (ItemProbability) Name() string { return StrategyProbability }

func (ItemProbability) Weight(item catalog.Item) float64 { return item.Probability }

// ParseStrategy возвращает стратегию по имени из конфига.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyRarity:
		return DefaultRarityWeights, nil
	case StrategyProbability:
		return ItemProbability{}, nil
	default:
		return nil, fmt.Errorf("неизвестная стратегия розыгрыша %q", name)
	}
}

// weightOf - вес предмета с отсечением мусора: отрицательные, NaN и
// бесконечные веса считаются нулевыми.
func weightOf(s Strategy, item catalog.Item) float64 {
	w := s.Weight(item)
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}
