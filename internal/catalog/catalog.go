// Package catalog defines the sellable products, their variants and prices,
// and the single key normalizer used by both live recording and migration.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"sales/internal/core"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

type (
	// Variant is one sellable option of a product. Label is the human text
	// shown on the menu button; Short, when set, is used in display names.
	Variant struct {
		Key   string
		Label string
		Short string
		Price core.Money
	}

	// Product is a catalog entry. A product with variants is never a sale key itself.
	Product struct {
		Key      string
		Name     string
		Price    core.Money
		Variants []Variant
	}

	// Catalog is immutable after construction; lookups never fail.
	Catalog struct {
		products []Product
		byKey    map[string]int
		// sale key -> display name / price
		display map[string]string
		prices  map[string]core.Money
		owner   map[string]string
		saleKey []string
	}
)

// New validates products and builds the lookup tables.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		byKey:   make(map[string]int, len(products)),
		display: make(map[string]string),
		prices:  make(map[string]core.Money),
		owner:   make(map[string]string),
	}

	var problems []string
	seen := make(map[string]string)
	claim := func(key, what string) {
		if prev, ok := seen[key]; ok {
			problems = append(problems, fmt.Sprintf("key %q used by %s and %s", key, prev, what))
			return
		}
		seen[key] = what
	}

	for _, p := range products {
		p.Key = strings.TrimSpace(p.Key)
		if p.Key == "" {
			problems = append(problems, "product with empty key")
			continue
		}
		if p.Name == "" {
			p.Name = p.Key
		}
		claim(p.Key, "product "+p.Key)

		variants := make([]Variant, 0, len(p.Variants))
		for _, v := range p.Variants {
			v.Key = strings.TrimSpace(v.Key)
			if v.Key == "" {
				problems = append(problems, fmt.Sprintf("product %q has a variant with empty key", p.Key))
				continue
			}
			if strings.TrimSpace(v.Label) == "" {
				problems = append(problems, fmt.Sprintf("variant %q has an empty label", v.Key))
				continue
			}
			claim(v.Key, "variant "+v.Key)
			variants = append(variants, v)
		}
		p.Variants = variants

		c.byKey[p.Key] = len(c.products)
		c.products = append(c.products, p)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w:\n- %s", ErrInvalidCatalog, strings.Join(problems, "\n- "))
	}

	for _, p := range c.products {
		// product keys resolve to a display name even when they are not sale keys
		c.display[p.Key] = p.Name
		if len(p.Variants) == 0 {
			c.prices[p.Key] = p.Price
			c.saleKey = append(c.saleKey, p.Key)
			continue
		}
		for _, v := range p.Variants {
			short := v.Short
			if short == "" {
				short = strings.TrimSpace(v.Label)
			}
			c.display[v.Key] = fmt.Sprintf("%s (%s)", p.Name, short)
			c.prices[v.Key] = v.Price
			c.owner[v.Key] = p.Key
			c.saleKey = append(c.saleKey, v.Key)
		}
	}
	return c, nil
}

// Products returns the products in definition order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Product looks up a product by key.
func (c *Catalog) Product(key string) (Product, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// ResolveVariant reports whether variant belongs to product.
func (c *Catalog) ResolveVariant(product, variant string) bool {
	return c.owner[variant] == product && product != ""
}

// DisplayName falls back to the raw key when it is unknown.
func (c *Catalog) DisplayName(key string) string {
	if name, ok := c.display[key]; ok {
		return name
	}
	return key
}

// Price returns zero for keys without a price.
func (c *Catalog) Price(key string) core.Money {
	return c.prices[key]
}

// AllSaleKeys returns no-variant product keys and every variant key, in catalog order.
func (c *Catalog) AllSaleKeys() []string {
	out := make([]string, len(c.saleKey))
	copy(out, c.saleKey)
	return out
}

func (c *Catalog) IsSaleKey(key string) bool {
	_, ok := c.prices[key]
	return ok
}

// RequiresVariant is true for products that can only be sold through a variant.
func (c *Catalog) RequiresVariant(key string) bool {
	p, ok := c.Product(key)
	return ok && len(p.Variants) > 0
}
