package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales/internal/core"
)

func TestDefaultCatalog(t *testing.T) {
	cat := Default()

	assert.Equal(t, []string{
		"mts_real_1month", "mts_real_subscription",
		"mts_more_1month", "mts_more_subscription",
		"mts_super", "membrane", "yandex_search",
		"yandex_x5_new", "yandex_x5_returning", "yandex_x5_active",
		"yandex_kids_new", "yandex_kids_returning", "yandex_kids_active",
	}, cat.AllSaleKeys())

	assert.Equal(t, core.Rubles(273), cat.Price("mts_super"))
	assert.Equal(t, core.Rubles(494), cat.Price("membrane"))
	assert.Equal(t, core.Rubles(175), cat.Price("mts_more_subscription"))
	assert.True(t, cat.Price("unknown").IsZero())
	assert.True(t, cat.Price("mts_real").IsZero(), "products with variants are not priced")

	assert.Equal(t, "⚡ МТС Супер", cat.DisplayName("mts_super"))
	assert.Equal(t, "📶 МТС Больше (1 Месяц)", cat.DisplayName("mts_more_1month"))
	assert.Equal(t, "🛒 Яндекс Подписка X5 (Новый)", cat.DisplayName("yandex_x5_new"))
	assert.Equal(t, "📱 МТС Риил", cat.DisplayName("mts_real"))
	assert.Equal(t, "legacy thing", cat.DisplayName("legacy thing"))
}

func TestResolveVariant(t *testing.T) {
	cat := Default()

	assert.True(t, cat.ResolveVariant("yandex_kids", "yandex_kids_active"))
	assert.False(t, cat.ResolveVariant("yandex_x5", "yandex_kids_active"))
	assert.False(t, cat.ResolveVariant("membrane", "membrane"))
	assert.False(t, cat.ResolveVariant("", "nope"))

	assert.True(t, cat.RequiresVariant("mts_real"))
	assert.False(t, cat.RequiresVariant("membrane"))
	assert.False(t, cat.IsSaleKey("mts_real"))
	assert.True(t, cat.IsSaleKey("membrane"))
}

func TestNewRejectsDuplicateKeys(t *testing.T) {
	tests := []struct {
		name     string
		products []Product
	}{
		{
			name: "variant shared across products",
			products: []Product{
				{Key: "a", Variants: []Variant{{Key: "v", Label: "V"}}},
				{Key: "b", Variants: []Variant{{Key: "v", Label: "V"}}},
			},
		},
		{
			name: "variant collides with product",
			products: []Product{
				{Key: "a"},
				{Key: "b", Variants: []Variant{{Key: "a", Label: "A"}}},
			},
		},
		{
			name:     "empty product key",
			products: []Product{{Key: "  "}},
		},
		{
			name:     "empty variant label",
			products: []Product{{Key: "a", Variants: []Variant{{Key: "a_x", Label: " "}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.products)
			require.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	doc := `{
  "products": [
    {"key": "tv", "name": "TV", "variants": [
      {"key": "tv_basic", "label": "Basic", "price": 99.5},
      {"key": "tv_plus", "label": "Plus", "short": "+", "price": "150"}
    ]},
    {"key": "sim", "name": "SIM", "price": 10}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cat, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"tv_basic", "tv_plus", "sim"}, cat.AllSaleKeys())
	assert.Equal(t, int64(9950), cat.Price("tv_basic").Kopecks)
	assert.Equal(t, core.Rubles(150), cat.Price("tv_plus"))
	assert.Equal(t, "TV (+)", cat.DisplayName("tv_plus"))
	assert.Equal(t, core.Rubles(10), cat.Price("sim"))

	_, err = Parse([]byte(`{"products": []}`))
	assert.ErrorIs(t, err, ErrInvalidCatalog)
	_, err = Parse([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestCatalogMarshalRoundTrip(t *testing.T) {
	data, err := Default().MarshalJSON()
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default().AllSaleKeys(), again.AllSaleKeys())
	assert.Equal(t, core.Rubles(650), again.Price("yandex_kids_new"))
}
