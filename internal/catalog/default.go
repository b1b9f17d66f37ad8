package catalog

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"sales/internal/core"
)

// Default returns the built-in tariff catalog.
func Default() *Catalog {
	c, err := New(defaultProducts())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
}

func defaultProducts() []Product {
	return []Product{
		{
			Key:  "mts_real",
			Name: "📱 МТС Риил",
			Variants: []Variant{
				{Key: "mts_real_1month", Label: "1 Месяц", Price: core.Rubles(81)},
				{Key: "mts_real_subscription", Label: "Абонемент", Price: core.Rubles(155)},
			},
		},
		{
			Key:  "mts_more",
			Name: "📶 МТС Больше",
			Variants: []Variant{
				{Key: "mts_more_1month", Label: "1 Месяц", Price: core.Rubles(81)},
				{Key: "mts_more_subscription", Label: "Абонемент", Price: core.Rubles(175)},
			},
		},
		{Key: "mts_super", Name: "⚡ МТС Супер", Price: core.Rubles(273)},
		{Key: "membrane", Name: "🛡️ Мембрана", Price: core.Rubles(494)},
		{Key: "yandex_search", Name: "🔍 Яндекс Поиск", Price: core.Rubles(180)},
		{
			Key:  "yandex_x5",
			Name: "🛒 Яндекс Подписка X5",
			Variants: []Variant{
				{Key: "yandex_x5_new", Label: "Новый клиент", Short: "Новый", Price: core.Rubles(650)},
				{Key: "yandex_x5_returning", Label: "Вернувшийся клиент", Short: "Вернувшийся", Price: core.Rubles(250)},
				{Key: "yandex_x5_active", Label: "Действующий клиент", Short: "Действующий", Price: core.Rubles(50)},
			},
		},
		{
			Key:  "yandex_kids",
			Name: "👶 Яндекс Подписка Детям",
			Variants: []Variant{
				{Key: "yandex_kids_new", Label: "Новый клиент", Short: "Новый", Price: core.Rubles(650)},
				{Key: "yandex_kids_returning", Label: "Вернувшийся клиент", Short: "Вернувшийся", Price: core.Rubles(250)},
				{Key: "yandex_kids_active", Label: "Действующий клиент", Short: "Действующий", Price: core.Rubles(50)},
			},
		},
	}
}

type fileVariant struct {
	Key   string     `json:"key"`
	Label string     `json:"label"`
	Short string     `json:"short,omitempty"`
	Price core.Money `json:"price"`
}

type fileProduct struct {
	Key      string        `json:"key"`
	Name     string        `json:"name"`
	Price    core.Money    `json:"price"`
	Variants []fileVariant `json:"variants,omitempty"`
}

type fileCatalog struct {
	Products []fileProduct `json:"products"`
}

// LoadFile reads a JSON catalog of the form {"products": [...]}.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON catalog document.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	if len(fc.Products) == 0 {
		return nil, fmt.Errorf("%w: no products", ErrInvalidCatalog)
	}

	products := make([]Product, 0, len(fc.Products))
	for _, fp := range fc.Products {
		p := Product{Key: fp.Key, Name: fp.Name, Price: fp.Price}
		for _, fv := range fp.Variants {
			p.Variants = append(p.Variants, Variant{Key: fv.Key, Label: fv.Label, Short: fv.Short, Price: fv.Price})
		}
		products = append(products, p)
	}
	return New(products)
}

// MarshalJSON renders the catalog in the same shape Parse accepts, with display names.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	type outVariant struct {
		fileVariant
		DisplayName string `json:"display_name"`
	}
	type outProduct struct {
		Key      string       `json:"key"`
		Name     string       `json:"name"`
		Price    *core.Money  `json:"price,omitempty"`
		Variants []outVariant `json:"variants,omitempty"`
	}
	out := struct {
		Products []outProduct `json:"products"`
	}{}
	for _, p := range c.products {
		op := outProduct{Key: p.Key, Name: p.Name}
		if len(p.Variants) == 0 {
			price := p.Price
			op.Price = &price
		}
		for _, v := range p.Variants {
			op.Variants = append(op.Variants, outVariant{
				fileVariant: fileVariant{Key: v.Key, Label: v.Label, Short: v.Short, Price: v.Price},
				DisplayName: c.DisplayName(v.Key),
			})
		}
		out.Products = append(out.Products, op)
	}
	return json.Marshal(out)
}
