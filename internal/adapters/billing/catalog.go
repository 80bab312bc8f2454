// Package billing holds the subscription plan catalog.
package billing

import (
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"referrski/internal/domain"
)

// StripePrices are the price ids of the paid plans, usually supplied by environment.
type StripePrices struct {
	ProMonthly      string
	ProYearly       string
	BusinessMonthly string
	BusinessYearly  string
}

// DefaultPlans returns the built-in free/pro/business catalog.
func DefaultPlans(prices StripePrices) []*domain.Plan {
	return []*domain.Plan{
		{
			ID:          domain.FreePlanID,
			Name:        "Free",
			Description: "Perfect for getting started",
			InviteLimit: 100,
			Features:    []string{"Up to 100 invites", "Basic analytics", "Email support"},
			Active:      true,
		},
		{
			ID:                   "pro",
			Name:                 "Pro",
			Description:          "For growing apps",
			InviteLimit:          10000,
			PriceMonthly:         900,
			PriceYearly:          9000,
			StripePriceIDMonthly: prices.ProMonthly,
			StripePriceIDYearly:  prices.ProYearly,
			Features:             []string{"Up to 10,000 invites", "Advanced analytics", "Webhooks", "Priority support"},
			Active:               true,
		},
		{
			ID:                   "business",
			Name:                 "Business",
			Description:          "For established apps",
			InviteLimit:          100000,
			PriceMonthly:         2900,
			PriceYearly:          29000,
			StripePriceIDMonthly: prices.BusinessMonthly,
			StripePriceIDYearly:  prices.BusinessYearly,
			Features:             []string{"Up to 100,000 invites", "Advanced analytics", "Webhooks", "Dedicated support"},
			Active:               true,
		},
	}
}

// Catalog is an immutable PlanCatalog.
type Catalog struct {
	byID    map[string]*domain.Plan
	byPrice map[string]*domain.Plan
	ordered []*domain.Plan
}

// NewCatalog indexes plans. Plan ids and Stripe price ids must be unique and a free plan must exist.
func NewCatalog(plans []*domain.Plan) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*domain.Plan), byPrice: make(map[string]*domain.Plan)}
	for _, p := range plans {
		if p.ID == "" {
			return nil, fmt.Errorf("plan %q has no id", p.Name)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if p.InviteLimit < 0 {
			return nil, fmt.Errorf("plan %q has a negative invite limit", p.ID)
		}
		c.byID[p.ID] = p
		for _, price := range []string{p.StripePriceIDMonthly, p.StripePriceIDYearly} {
			if price == "" {
				continue
			}
			if other, dup := c.byPrice[price]; dup {
				return nil, fmt.Errorf("stripe price %q is used by plans %q and %q", price, other.ID, p.ID)
			}
			c.byPrice[price] = p
		}
		c.ordered = append(c.ordered, p)
	}
	if _, ok := c.byID[domain.FreePlanID]; !ok {
		return nil, fmt.Errorf("catalog must define the %q plan", domain.FreePlanID)
	}
	sort.SliceStable(c.ordered, func(i, j int) bool { return c.ordered[i].InviteLimit < c.ordered[j].InviteLimit })
	return c, nil
}

func (c *Catalog) Get(id string) (*domain.Plan, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) ByStripePriceID(priceID string) (*domain.Plan, bool) {
	if priceID == "" {
		return nil, false
	}
	p, ok := c.byPrice[priceID]
	return p, ok
}

// Active returns the active plans ordered by invite limit.
func (c *Catalog) Active() []*domain.Plan {
	out := make([]*domain.Plan, 0, len(c.ordered))
	for _, p := range c.ordered {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

type planFile struct {
	Plans []*domain.Plan `toml:"plan"`
}

// LoadCatalog builds the catalog from the defaults, overlaid with the [[plan]]
// entries of path when it is non-empty. A file entry replaces the default plan
// with the same id wholesale. Stripe price ids left empty in the file keep the
// configured ones.
func LoadCatalog(path string, prices StripePrices, logger *slog.Logger) (*Catalog, error) {
	plans := DefaultPlans(prices)
	if path == "" {
		return NewCatalog(plans)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plans file %s: %w", path, err)
	}
	var pf planFile
	md, err := toml.Decode(string(data), &pf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plans file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logger.Warn("plans file contains undecoded keys", "path", path, "keys", keys)
	}

	index := make(map[string]int, len(plans))
	for i, p := range plans {
		index[p.ID] = i
	}
	for _, p := range pf.Plans {
		i, ok := index[p.ID]
		if !ok {
			plans = append(plans, p)
			index[p.ID] = len(plans) - 1
			continue
		}
		if p.StripePriceIDMonthly == "" {
			p.StripePriceIDMonthly = plans[i].StripePriceIDMonthly
		}
		if p.StripePriceIDYearly == "" {
			p.StripePriceIDYearly = plans[i].StripePriceIDYearly
		}
		plans[i] = p
	}
	return NewCatalog(plans)
}
