package catalog

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/gifts-bot/internal/features/ledger"
)

func TestRarityFromPercent(t *testing.T) {
	cases := map[float64]Rarity{
		0:    RarityLegendary,
		0.5:  RarityLegendary,
		1:    RarityEpic,
		3:    RarityEpic,
		5:    RarityRare,
		10:   RarityRare,
		14.9: RarityRare,
		15:   RarityCommon,
		40:   RarityCommon,
	}
	for percent, want := range cases {
		require.Equal(t, want, RarityFromPercent(percent), "percent=%v", percent)
	}
}

func TestParseCaseItemsObject(t *testing.T) {
	data := []byte(`{"items": [
		{"item_id": "gift-1", "name": "Plush Pepe", "image": "https://img/1.png", "price": 1200, "percent": 0.5},
		{"id": 77, "name": "Cake", "price_ton": 2, "percent": "3"},
		{"name": "Rose", "value": 40, "percent": 10},
		{"rarity": "Epic", "probability": 0.2},
		{"percent": 40}
	]}`)

	items, err := ParseCaseItems("mix-case", data, 50)
	require.NoError(t, err)
	require.Len(t, items, 5)

	require.Equal(t, Item{
		ID: "gift-1", CaseID: "mix-case", Name: "Plush Pepe", ImageURL: "https://img/1.png",
		Rarity: RarityLegendary, Value: 1200, Probability: 0.005,
	}, items[0])

	require.Equal(t, "77", items[1].ID)
	require.Equal(t, int64(100), items[1].Value)
	require.Equal(t, RarityEpic, items[1].Rarity)
	require.InDelta(t, 0.03, items[1].Probability, 1e-12)

	require.Equal(t, "mix-case_2", items[2].ID)
	require.Equal(t, int64(40), items[2].Value)
	require.Equal(t, RarityRare, items[2].Rarity)

	require.Equal(t, "Item 4", items[3].Name)
	require.Equal(t, RarityEpic, items[3].Rarity)
	require.Equal(t, 0.2, items[3].Probability)
	require.Equal(t, DefaultItemValue, items[3].Value)

	require.Equal(t, RarityCommon, items[4].Rarity)
	require.Equal(t, 0.4, items[4].Probability)
}

func TestParseCaseItemsBareArray(t *testing.T) {
	items, err := ParseCaseItems("c", []byte(`[{"name": "A", "rarity": "mythic"}, 5, {"name": "B"}]`), 50)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, RarityCommon, items[0].Rarity)
	require.Equal(t, DefaultItemProbability, items[0].Probability)
	// Индекс в id берётся по позиции в исходном массиве
	require.Equal(t, "c_2", items[1].ID)
}

func TestParseCaseItemsZeroPercentIsAbsent(t *testing.T) {
	data := []byte(`[{"name": "A", "percent": 0}, {"name": "B", "percent": 0, "rarity": "epic", "probability": 0.1}]`)
	items, err := ParseCaseItems("c", data, 50)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, RarityCommon, items[0].Rarity)
	require.Equal(t, DefaultItemProbability, items[0].Probability)

	require.Equal(t, RarityEpic, items[1].Rarity)
	require.Equal(t, 0.1, items[1].Probability)
}

func TestParseCaseItemsErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":      `{"items": [`,
		"no items field": `{"results": []}`,
		"empty":          `[]`,
		"scalar":         `42`,
		"only scalars":   `{"items": [1, "x"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCaseItems("c", []byte(body), 50)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "err=%v", err)
			require.Equal(t, "c", perr.CaseID)
		})
	}
}

func TestTONToStars(t *testing.T) {
	require.Equal(t, int64(100), TONToStars(decimal.NewFromInt(2), 50))
	require.Equal(t, int64(62), TONToStars(decimal.RequireFromString("1.25"), 50))
}

func TestParseCaseListing(t *testing.T) {
	data := []byte(`{"results": [
		{"id": "Fi2qyoOjP", "cases": [
			{"name": "Daily Free", "translit_name": "daily-free", "tickets_price": 0, "price": 0}
		]},
		{"id": "Tf6QT0lsm", "cases": [
			{"name": "NFT Box", "translit_name": "nft-box", "tickets_price": 350},
			{"name": "Second Name", "translit_name": "nft-box", "tickets_price": 1},
			{"name": "Lucky Mix", "price": "120.7", "category_id": "No5F34LaK"}
		]},
		{"cases": [{"name": "All In", "category_id": "Ju2e5dVmS", "price": 999}, {"price": 10}]}
	]}`)

	cases, err := ParseCaseListing(data)
	require.NoError(t, err)
	require.Len(t, cases, 4)

	require.Equal(t, "daily-free", cases[0].ID)
	require.Equal(t, CategoryFree, cases[0].Category)
	require.True(t, cases[0].Price.Equal(decimal.NewFromInt(DefaultCasePrice)))
	require.Equal(t, ledger.CurrencyStars, cases[0].Currency)

	require.Equal(t, "nft-box", cases[1].ID)
	require.Equal(t, "NFT Box", cases[1].Name)
	require.Equal(t, CategoryNFT, cases[1].Category)
	require.True(t, cases[1].Price.Equal(decimal.NewFromInt(350)))

	require.Equal(t, "lucky-mix", cases[2].ID)
	require.Equal(t, CategoryMix, cases[2].Category)
	require.True(t, cases[2].Price.Equal(decimal.NewFromInt(120)))

	require.Equal(t, CategoryAllIn, cases[3].Category)
}

func TestParseCaseListingErrors(t *testing.T) {
	_, err := ParseCaseListing([]byte(`{"cases": []}`))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)

	_, err = ParseCaseListing([]byte(`not json`))
	require.ErrorAs(t, err, &perr)
}

func TestCategoryFromUpstream(t *testing.T) {
	require.Equal(t, CategoryLimited, CategoryFromUpstream("Oq1B6mrTC"))
	require.Equal(t, CategoryNFT, CategoryFromUpstream("Jr9jQbSYq"))
	require.Equal(t, CategoryMix, CategoryFromUpstream("unknown"))
}

func TestFallbackItemsDeterministic(t *testing.T) {
	a := FallbackItems("x")
	b := FallbackItems("x")
	require.Equal(t, a, b)
	require.Len(t, a, 4)
	require.Equal(t, "Bronze Gift", a[0].Name)
	require.Equal(t, RarityLegendary, a[3].Rarity)

	// Изменение копии не портит исходный набор
	a[0].Name = "changed"
	require.Equal(t, "Bronze Gift", FallbackItems("x")[0].Name)
}
