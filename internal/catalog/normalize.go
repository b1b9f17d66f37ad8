package catalog

import "strings"

// KeySeparator joins a product key and a variant label in malformed legacy keys.
const KeySeparator = "_"

// Normalizer maps candidate keys onto canonical sale keys.
type Normalizer struct {
	cat *Catalog
}

func NewNormalizer(cat *Catalog) *Normalizer {
	return &Normalizer{cat: cat}
}

// Normalize returns the canonical sale key for candidate, or candidate itself
// when nothing matches. Normalize(Normalize(s)) == Normalize(s) for every s.
//
// Rules, first match wins:
//  1. candidate is already a sale key
//  2. "<product>_<label>" where product has variants and label matches one of them
//  3. candidate equals a variant label of any product, in catalog order
func (n *Normalizer) Normalize(candidate string) string {
	key, _ := n.Resolve(candidate)
	return key
}

// Resolve is Normalize plus whether the result is a known sale key.
func (n *Normalizer) Resolve(candidate string) (string, bool) {
	if candidate == "" {
		return candidate, false
	}
	if n.cat.IsSaleKey(candidate) {
		return candidate, true
	}

	// Product keys contain the separator themselves, so every split point is tried.
	for i := strings.Index(candidate, KeySeparator); i >= 0; {
		prefix, suffix := candidate[:i], candidate[i+len(KeySeparator):]
		if p, ok := n.cat.Product(prefix); ok && len(p.Variants) > 0 {
			if v, ok := matchLabel(p.Variants, suffix); ok {
				return v, true
			}
		}
		next := strings.Index(candidate[i+len(KeySeparator):], KeySeparator)
		if next < 0 {
			break
		}
		i += len(KeySeparator) + next
	}

	for _, p := range n.cat.products {
		if v, ok := matchLabel(p.Variants, candidate); ok {
			return v, true
		}
	}
	return candidate, false
}

func matchLabel(variants []Variant, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	for _, v := range variants {
		if strings.TrimSpace(v.Label) == text {
			return v.Key, true
		}
	}
	return "", false
}
