package reconcile

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
)

// IDSource hands out identifiers for new records.
type IDSource interface {
	NewID() string
}

// IndentGroup is the set of source indents sharing a route and date.
type IndentGroup struct {
	Key     models.GroupKey
	Indents []*models.Indent
}

// GroupIndents buckets unprocessed source indents by (route, date). Adjusted
// indents and indents in a terminal state are skipped. Groups are ordered by
// key and indents inside a group by creation time, then id.
func GroupIndents(indents []*models.Indent) []IndentGroup {
	byKey := make(map[models.GroupKey]*IndentGroup)
	var keys []models.GroupKey
	for _, ind := range indents {
		if ind == nil || ind.IsAdjusted || ind.Status != models.IndentStatusUnprocessed {
			continue
		}
		key := ind.GroupKey()
		g, ok := byKey[key]
		if !ok {
			g = &IndentGroup{Key: key}
			byKey[key] = g
			keys = append(keys, key)
		}
		g.Indents = append(g.Indents, ind)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].Route < keys[j].Route
	})

	groups := make([]IndentGroup, 0, len(keys))
	for _, k := range keys {
		g := byKey[k]
		sort.SliceStable(g.Indents, func(i, j int) bool {
			return indentBefore(g.Indents[i], g.Indents[j])
		})
		groups = append(groups, *g)
	}
	return groups
}

func indentBefore(a, b *models.Indent) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SKUs returns every SKU on the group's lines, sorted.
func (g IndentGroup) SKUs() []string {
	seen := make(map[string]bool)
	var skus []string
	for _, ind := range g.Indents {
		for _, sku := range ind.SKUs() {
			if !seen[sku] {
				seen[sku] = true
				skus = append(skus, sku)
			}
		}
	}
	sort.Strings(skus)
	return skus
}

// IndentedQty sums the actual quantity per SKU across the group.
func (g IndentGroup) IndentedQty() map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, ind := range g.Indents {
		for _, l := range ind.Lines {
			if l.SKU == "" {
				continue
			}
			totals[l.SKU] = totals[l.SKU].Add(l.ActualQty)
		}
	}
	return totals
}

// ComputeShortfalls returns max(0, demand - indented) for each SKU of the
// group. Only positive shortfalls are present in the result. SKUs without a
// demand record count as zero demand.
func ComputeShortfalls(g IndentGroup, demand map[string]decimal.Decimal) map[string]decimal.Decimal {
	indented := g.IndentedQty()
	shortfalls := make(map[string]decimal.Decimal)
	for _, sku := range g.SKUs() {
		short := demand[sku].Sub(indented[sku])
		if short.IsPositive() {
			shortfalls[sku] = short
		}
	}
	return shortfalls
}

// ShortfallLine is one line of an adjusted indent before packaging.
type ShortfallLine struct {
	SKU      string
	UOM      string
	Quantity decimal.Decimal
}

// AllocateShortfalls assigns each SKU's shortfall to the earliest indent of
// the group that carries the SKU, so a shortfall is never indented twice.
// The result maps indent id to its lines, sorted by SKU.
func AllocateShortfalls(g IndentGroup, shortfalls map[string]decimal.Decimal) map[string][]ShortfallLine {
	alloc := make(map[string][]ShortfallLine)
	skus := make([]string, 0, len(shortfalls))
	for sku := range shortfalls {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, sku := range skus {
		qty := shortfalls[sku]
		if !qty.IsPositive() {
			continue
		}
		for _, ind := range g.Indents {
			if !ind.HasSKU(sku) {
				continue
			}
			alloc[ind.ID] = append(alloc[ind.ID], ShortfallLine{
				SKU:      sku,
				UOM:      lineUOM(ind, sku),
				Quantity: qty,
			})
			break
		}
	}
	return alloc
}

func lineUOM(ind *models.Indent, sku string) string {
	for _, l := range ind.Lines {
		if l.SKU == sku && l.UOM != "" {
			return l.UOM
		}
	}
	return ""
}

// BuildAdjustedIndent creates the adjusted indent for source from its
// allocated shortfall lines. Lines are packaged through converter; conversion
// problems leave the packaging fields unset and are returned as warnings.
func BuildAdjustedIndent(source *models.Indent, lines []ShortfallLine, converter *Converter, ids IDSource, now time.Time) (*models.Indent, []error) {
	sourceID := source.ID
	adjusted := &models.Indent{
		ID:             ids.NewID(),
		Route:          source.Route,
		Date:           source.Date,
		Facility:       source.Facility,
		Status:         models.IndentStatusUnprocessed,
		IsAdjusted:     true,
		SourceIndentID: &sourceID,
		CreatedAt:      now,
	}

	var warnings []error
	for i, sl := range lines {
		line := models.IndentLine{
			ID:           ids.NewID(),
			IndentID:     adjusted.ID,
			Idx:          i + 1,
			SKU:          sl.SKU,
			UOM:          sl.UOM,
			RequestedQty: sl.Quantity,
			ActualQty:    sl.Quantity,
		}
		// A SKU without packaging still gets its shortfall, as loose units.
		if p, err := converter.Convert(sl.SKU, sl.Quantity); err != nil {
			warnings = append(warnings, err)
			line.Loose = p.Loose
		} else {
			capacity := p.Capacity
			line.PackagingCapacity = &capacity
			line.Crates = p.Crates
			line.Loose = p.Loose
		}
		adjusted.Lines = append(adjusted.Lines, line)
	}
	return adjusted, warnings
}
