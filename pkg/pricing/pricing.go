package pricing

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

type Interval string

const (
	Monthly Interval = "month"
	Yearly  Interval = "year"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type StripeIDs struct {
	Monthly string `yaml:"monthly" json:"monthly"`
	Yearly  string `yaml:"yearly" json:"yearly"`
}

// Prices are in the smallest currency unit.
type Prices struct {
	Monthly int64 `yaml:"monthly" json:"monthly"`
	Yearly  int64 `yaml:"yearly" json:"yearly"`
}

type Plan struct {
	Slug        string    `yaml:"slug" json:"slug"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description"`
	StripeIDs   StripeIDs `yaml:"stripeIds" json:"stripe_ids"`
	Features    []string  `yaml:"features" json:"features"`
	Prices      Prices    `yaml:"prices" json:"prices"`
}

// IsFree reports whether the plan has no billable prices.
func (p Plan) IsFree() bool {
	return p.StripeIDs.Monthly == "" && p.StripeIDs.Yearly == ""
}

// Catalog is the ordered list of plans. The first plan is the free fallback.
type Catalog struct {
	Plans []Plan `yaml:"plans" json:"plans"`
}

var ErrEmptyCatalog = errors.New("pricing catalog has no plans")

// Load reads the catalog at path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse pricing catalog: %w", err)
	}
	if len(c.Plans) == 0 {
		return nil, ErrEmptyCatalog
	}

	seen := make(map[string]string)
	for i := range c.Plans {
		p := &c.Plans[i]
		if p.Name == "" {
			return nil, fmt.Errorf("plan %d has no name", i)
		}
		if p.Slug == "" {
			p.Slug = slug.Make(p.Name)
		}
		for _, id := range []string{p.StripeIDs.Monthly, p.StripeIDs.Yearly} {
			if id == "" {
				continue
			}
			if other, dup := seen[id]; dup {
				return nil, fmt.Errorf("price %s is used by both %s and %s", id, other, p.Slug)
			}
			seen[id] = p.Slug
		}
	}
	return &c, nil
}

// Free returns the fallback plan.
func (c *Catalog) Free() Plan {
	return c.Plans[0]
}

// FindByPriceID returns the plan whose monthly or yearly id equals priceID and
// the interval it matched.
func (c *Catalog) FindByPriceID(priceID string) (Plan, Interval, bool) {
	if priceID == "" {
		return Plan{}, "", false
	}
	for _, p := range c.Plans {
		switch priceID {
		case p.StripeIDs.Monthly:
			return p, Monthly, true
		case p.StripeIDs.Yearly:
			return p, Yearly, true
		}
	}
	return Plan{}, "", false
}

// KnowsPrice reports whether priceID is billable through some plan.
func (c *Catalog) KnowsPrice(priceID string) bool {
	_, _, ok := c.FindByPriceID(priceID)
	return ok
}
