// Package reward выбирает предмет из набора кейса взвешенным розыгрышем.
package reward

import (
	"math"

	"serotonyl.ru/gifts-bot/internal/common"
	"serotonyl.ru/gifts-bot/internal/features/catalog"
)

// Pick - результат одного розыгрыша. Roll и Total сохраняются в аудит,
// чтобы исход можно было пересчитать по тому же набору предметов.
type Pick struct {
	Item  catalog.Item
	Index int
	Roll  float64
	Total float64
}

// Selector проводит взвешенный розыгрыш по стратегии.
// Безопасен для параллельного использования, если безопасен Source.
type Selector struct {
	strategy Strategy
	source   Source
}

// NewSelector создаёт селектор. nil-источник заменяется на CryptoSource.
func NewSelector(strategy Strategy, source Source) *Selector {
	if strategy == nil {
		strategy = DefaultRarityWeights
	}
	if source == nil {
		source = CryptoSource{}
	}
	return &Selector{strategy: strategy, source: source}
}

// Strategy возвращает стратегию селектора.
func (s *Selector) Strategy() Strategy { return s.strategy }

// Select возвращает выбранный предмет.
func (s *Selector) Select(items []catalog.Item) (catalog.Item, error) {
	p, err := s.Pick(items)
	if err != nil {
		return catalog.Item{}, err
	}
	return p.Item, nil
}

// Pick разыгрывает предмет: r из [0, total), затем r -= weight по порядку,
// выигрывает первый предмет, на котором остаток стал отрицательным.
// При нулевом суммарном весе или если проход не выбрал ничего (дрейф
// плавающей точки) возвращается первый предмет. Пустой набор - ErrNoItems.
func (s *Selector) Pick(items []catalog.Item) (Pick, error) {
	if len(items) == 0 {
		return Pick{}, common.ErrNoItems
	}

	weights := make([]float64, len(items))
	var total float64
	for i, it := range items {
		weights[i] = weightOf(s.strategy, it)
		total += weights[i]
	}
	if total <= 0 || math.IsInf(total, 0) {
		return Pick{Item: items[0], Index: 0, Total: total}, nil
	}

	r := s.source.Draw(total)
	if math.IsNaN(r) || r < 0 {
		r = 0
	}

	rem := r
	for i, w := range weights {
		if w == 0 {
			continue
		}
		rem -= w
		if rem < 0 {
			return Pick{Item: items[i], Index: i, Roll: r, Total: total}, nil
		}
	}
	return Pick{Item: items[0], Index: 0, Roll: r, Total: total}, nil
}

// Chances возвращает вероятность выпадения каждого предмета при текущей стратегии.
// При нулевом суммарном весе весь шанс у первого предмета.
func (s *Selector) Chances(items []catalog.Item) []float64 {
	out := make([]float64, len(items))
	if len(items) == 0 {
		return out
	}
	var total float64
	for i, it := range items {
		out[i] = weightOf(s.strategy, it)
		total += out[i]
	}
	if total <= 0 || math.IsInf(total, 0) {
		for i := range out {
			out[i] = 0
		}
		out[0] = 1
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
