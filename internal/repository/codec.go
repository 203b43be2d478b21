package repository

import (
	"fmt"
	"math"
	"time"

	"stockwatch/internal/kv"
	"stockwatch/internal/model"

	"github.com/shopspring/decimal"
)

const (
	partitionCategory = "CATEGORY"
	partitionProducts = "PRODUCTS"
	sortKeyMeta       = "META"

	categoryPrefix = "CATEGORY#"
	productPrefix  = "PRODUCT#"
)

// Attribute names shared by the primary and index records.
const (
	attrID                = "id"
	attrName              = "name"
	attrPrice             = "price"
	attrQuantity          = "quantity"
	attrCategory          = "category"
	attrOverrideThreshold = "override_threshold"
	attrAlertSent         = "low_stock_alert_sent"
	attrDefaultThreshold  = "default_threshold"
	attrDescription       = "description"
	attrCreatedAt         = "created_at"
)

func categoryKey(name string) kv.Key {
	return kv.Key{PK: partitionCategory, SK: categoryPrefix + name}
}

func productKey(id string) kv.Key {
	return kv.Key{PK: productPrefix + id, SK: sortKeyMeta}
}

func productIndexKey(id string) kv.Key {
	return kv.Key{PK: partitionProducts, SK: productPrefix + id}
}

func categoryAttributes(c *model.Category) kv.Attributes {
	return kv.Attributes{
		attrName:             c.Name,
		attrDefaultThreshold: c.DefaultThreshold,
		attrDescription:      c.Description,
		attrCreatedAt:        c.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func productAttributes(p *model.Product) kv.Attributes {
	return kv.Attributes{
		attrID:                p.ID,
		attrName:              p.Name,
		attrPrice:             p.Price,
		attrQuantity:          p.Quantity,
		attrCategory:          p.Category,
		attrOverrideThreshold: p.OverrideThreshold,
		attrAlertSent:         p.LowStockAlertSent,
		attrCreatedAt:         p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeCategory(attrs kv.Attributes) (*model.Category, error) {
	r := attrReader{attrs: attrs}
	c := &model.Category{
		Name:             r.str(attrName),
		DefaultThreshold: r.integer(attrDefaultThreshold),
		Description:      r.optStr(attrDescription),
		CreatedAt:        r.timestamp(attrCreatedAt),
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to decode category: %w", r.err)
	}
	return c, nil
}

func decodeProduct(attrs kv.Attributes) (*model.Product, error) {
	r := attrReader{attrs: attrs}
	p := &model.Product{
		ID:                r.str(attrID),
		Name:              r.str(attrName),
		Price:             r.number(attrPrice),
		Quantity:          r.integer(attrQuantity),
		Category:          r.str(attrCategory),
		OverrideThreshold: r.optInteger(attrOverrideThreshold),
		LowStockAlertSent: r.flag(attrAlertSent),
		CreatedAt:         r.timestamp(attrCreatedAt),
	}
	if r.err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", r.err)
	}
	return p, nil
}

// attrReader extracts typed fields, keeping the first error.
type attrReader struct {
	attrs kv.Attributes
	err   error
}

func (r *attrReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func (r *attrReader) str(name string) string {
	v, ok := r.attrs[name]
	if !ok || v == nil {
		r.fail("missing attribute %q", name)
		return ""
	}
	s, ok := v.(string)
	if !ok {
		r.fail("attribute %q is %T, want string", name, v)
	}
	return s
}

func (r *attrReader) optStr(name string) *string {
	v, ok := r.attrs[name]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		r.fail("attribute %q is %T, want string", name, v)
		return nil
	}
	return &s
}

func (r *attrReader) number(name string) decimal.Decimal {
	v, ok := r.attrs[name]
	if !ok || v == nil {
		r.fail("missing attribute %q", name)
		return decimal.Zero
	}
	d, ok := kv.AsDecimal(v)
	if !ok {
		r.fail("attribute %q is %T, want number", name, v)
	}
	return d
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

func (r *attrReader) integer(name string) int64 {
	d := r.number(name)
	if !d.IsInteger() {
		r.fail("attribute %q is %s, want integer", name, d)
		return 0
	}
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		r.fail("attribute %q is %s, out of int64 range", name, d)
		return 0
	}
	return d.IntPart()
}

func (r *attrReader) optInteger(name string) *int64 {
	if v, ok := r.attrs[name]; !ok || v == nil {
		return nil
	}
	n := r.integer(name)
	return &n
}

func (r *attrReader) flag(name string) bool {
	v, ok := r.attrs[name]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		r.fail("attribute %q is %T, want bool", name, v)
	}
	return b
}

func (r *attrReader) timestamp(name string) time.Time {
	s := r.str(name)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail("attribute %q: %v", name, err)
	}
	return t
}
