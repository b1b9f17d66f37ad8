package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	Day   Granularity = "day"
	Month Granularity = "month"
)

type (
	// Granularity selects which family of period files a sale is aggregated into.
	Granularity string

	// OperatorID is the stable numeric identity handed over by the messaging platform.
	OperatorID int64

	// Operator carries the identity fields stamped into a period file on first appearance.
	Operator struct {
		ID       OperatorID
		Username string
		FullName string
	}

	// OperatorRecord is one operator's entry inside a period file.
	OperatorRecord struct {
		Username string           `json:"username"`
		FullName string           `json:"full_name"`
		Sales    map[string]int64 `json:"sales"`
	}

	// PeriodData is the decoded content of a period file keyed by operator id.
	PeriodData map[string]OperatorRecord
)

var (
	ErrUnresolvedKey      = errors.New("sale key not in catalog")
	ErrStaleSession       = errors.New("no active session for operator")
	ErrCorruptPeriodFile  = errors.New("corrupt period file")
	ErrPersistenceFailure = errors.New("period file could not be persisted")
	ErrStoreNotReady      = errors.New("period store not open for live writes")
	ErrInvalidGranularity = errors.New("invalid granularity")
	ErrInvalidPeriod      = errors.New("invalid period label")
	ErrEmptySaleKey       = errors.New("empty sale key")
	ErrVariantRequired    = errors.New("product requires a variant")
	ErrUnknownVariant     = errors.New("unknown product variant")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidOperator    = errors.New("invalid operator id")
)

// Granularities lists every supported granularity, day first.
func Granularities() []Granularity {
	return []Granularity{Day, Month}
}

// ParseGranularity accepts "day"/"daily" and "month"/"monthly".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily":
		return Day, nil
	case "month", "monthly":
		return Month, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

func (g Granularity) Valid() bool {
	return g == Day || g == Month
}

// Layout returns the time layout used for period labels.
func (g Granularity) Layout() string {
	if g == Month {
		return "2006-01"
	}
	return "2006-01-02"
}

// Dir returns the directory name under the data root.
func (g Granularity) Dir() string {
	if g == Month {
		return "monthly"
	}
	return "daily"
}

// Label formats t as a period label for this granularity.
func (g Granularity) Label(t time.Time) string {
	return t.Format(g.Layout())
}

// ValidateLabel checks that label is a well-formed, canonical label for g.
func (g Granularity) ValidateLabel(label string) error {
	if !g.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
	}
	t, err := time.Parse(g.Layout(), label)
	if err != nil || t.Format(g.Layout()) != label {
		return fmt.Errorf("%w: %q is not a %s label", ErrInvalidPeriod, label, g)
	}
	return nil
}

func (id OperatorID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseOperatorID parses a decimal operator id; zero and negative ids are rejected.
func ParseOperatorID(s string) (OperatorID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOperator, s)
	}
	return OperatorID(v), nil
}

func (o Operator) Validate() error {
	if o.ID <= 0 {
		return ErrInvalidOperator
	}
	return nil
}

// NewOperatorRecord seeds a record with the operator's identity and an empty sales map.
func NewOperatorRecord(op Operator) OperatorRecord {
	return OperatorRecord{
		Username: op.Username,
		FullName: op.FullName,
		Sales:    map[string]int64{},
	}
}

// Total returns the number of sales across all keys.
func (r OperatorRecord) Total() int64 {
	var n int64
	for _, c := range r.Sales {
		n += c
	}
	return n
}

// Clone returns a deep copy so callers cannot mutate stored maps.
func (r OperatorRecord) Clone() OperatorRecord {
	out := r
	out.Sales = make(map[string]int64, len(r.Sales))
	for k, v := range r.Sales {
		out.Sales[k] = v
	}
	return out
}

func (r OperatorRecord) Validate() error {
	for k, c := range r.Sales {
		if c < 0 {
			return fmt.Errorf("negative count %d for key %q", c, k)
		}
	}
	return nil
}

// Operator returns the record for id, or an empty record with no sales.
func (p PeriodData) Operator(id string) OperatorRecord {
	if rec, ok := p[id]; ok {
		return rec
	}
	return OperatorRecord{Sales: map[string]int64{}}
}

// OperatorIDs returns the operator ids in ascending numeric order.
func (p PeriodData) OperatorIDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids
}

// Validate rejects records with negative counts and fills in missing sales maps.
func (p PeriodData) Validate() error {
	for id, rec := range p {
		if rec.Sales == nil {
			rec.Sales = map[string]int64{}
			p[id] = rec
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("operator %s: %w", id, err)
		}
	}
	return nil
}
