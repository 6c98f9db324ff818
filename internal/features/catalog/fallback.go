package catalog

// fallbackItems - запасной набор на случай, когда внешний сервис недоступен
// или вернул мусор. Кейс открывается всегда, пусть и с этим набором.
var fallbackItems = []Item{
	{ID: "fallback_bronze", Name: "Bronze Gift", Rarity: RarityCommon, Value: 25, Probability: 0.5},
	{ID: "fallback_silver", Name: "Silver Gift", Rarity: RarityRare, Value: 100, Probability: 0.3},
	{ID: "fallback_gold", Name: "Gold Gift", Rarity: RarityEpic, Value: 250, Probability: 0.15},
	{ID: "fallback_diamond", Name: "Diamond Gift", Rarity: RarityLegendary, Value: 500, Probability: 0.05},
}

// FallbackItems возвращает копию запасного набора для кейса.
// Набор одинаковый при каждом вызове, меняется только CaseID.
func FallbackItems(caseID string) []Item {
	out := make([]Item, len(fallbackItems))
	for i, it := range fallbackItems {
		it.CaseID = caseID
		out[i] = it
	}
	return out
}
