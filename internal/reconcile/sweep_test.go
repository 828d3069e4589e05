package reconcile

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indentrecon/indentrecon/internal/models"
)

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("id-%03d", s.n)
}

var sweepDate = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

func indentWith(id, route string, created time.Time, lines ...models.IndentLine) *models.Indent {
	for i := range lines {
		lines[i].IndentID = id
		lines[i].Idx = i + 1
	}
	return &models.Indent{
		ID:        id,
		Route:     route,
		Date:      sweepDate,
		Status:    models.IndentStatusUnprocessed,
		Lines:     lines,
		CreatedAt: created,
	}
}

func lineOf(sku, requested, difference string) models.IndentLine {
	return models.IndentLine{
		SKU:          sku,
		UOM:          "Nos",
		RequestedQty: dec(requested),
		Difference:   dec(difference),
		ActualQty:    ApplyDifference(dec(requested), dec(difference)),
	}
}

func TestGroupIndents(t *testing.T) {
	t0 := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)
	a := indentWith("b", "R1", t0.Add(time.Minute), lineOf("MILK-500", "10", "0"))
	b := indentWith("a", "R1", t0.Add(time.Minute), lineOf("MILK-500", "10", "0"))
	c := indentWith("c", "R2", t0, lineOf("MILK-500", "10", "0"))
	done := indentWith("d", "R1", t0, lineOf("MILK-500", "10", "0"))
	done.Status = models.IndentStatusProcessed
	adj := indentWith("e", "R1", t0, lineOf("MILK-500", "10", "0"))
	adj.IsAdjusted = true

	groups := GroupIndents([]*models.Indent{a, c, done, b, adj})
	require.Len(t, groups, 2)

	assert.Equal(t, "R1", groups[0].Key.Route)
	require.Len(t, groups[0].Indents, 2)
	assert.Equal(t, "a", groups[0].Indents[0].ID, "same creation time falls back to id")
	assert.Equal(t, "b", groups[0].Indents[1].ID)

	assert.Equal(t, "R2", groups[1].Key.Route)
	assert.Equal(t, "2026-03-14", groups[1].Key.Date)
}

func TestComputeShortfalls(t *testing.T) {
	t0 := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)

	t.Run("shortfall against actual quantity", func(t *testing.T) {
		g := GroupIndents([]*models.Indent{
			indentWith("src", "R", t0, lineOf("SKU-A", "100", "10")),
		})[0]
		got := ComputeShortfalls(g, map[string]decimal.Decimal{"SKU-A": dec("120")})
		require.Contains(t, got, "SKU-A")
		assert.True(t, dec("30").Equal(got["SKU-A"]))
	})

	t.Run("no shortfall when indented covers demand", func(t *testing.T) {
		g := GroupIndents([]*models.Indent{
			indentWith("src", "R", t0, lineOf("SKU-B", "60", "0")),
		})[0]
		got := ComputeShortfalls(g, map[string]decimal.Decimal{"SKU-B": dec("50")})
		assert.Empty(t, got)
	})

	t.Run("group lines are merged", func(t *testing.T) {
		g := GroupIndents([]*models.Indent{
			indentWith("x", "R", t0, lineOf("SKU-A", "40", "0")),
			indentWith("y", "R", t0.Add(time.Hour), lineOf("SKU-A", "50", "0"), lineOf("SKU-C", "5", "0")),
		})[0]
		got := ComputeShortfalls(g, map[string]decimal.Decimal{
			"SKU-A": dec("100"),
			"SKU-Z": dec("7"),
		})
		require.Len(t, got, 1, "missing demand counts as zero and SKUs outside the group are ignored")
		assert.True(t, dec("10").Equal(got["SKU-A"]))
	})
}

func TestAllocateShortfalls_EarliestIndentWins(t *testing.T) {
	t0 := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)
	g := GroupIndents([]*models.Indent{
		indentWith("late", "R", t0.Add(time.Hour), lineOf("SKU-A", "40", "0"), lineOf("SKU-C", "5", "0")),
		indentWith("early", "R", t0, lineOf("SKU-A", "50", "0")),
	})[0]

	alloc := AllocateShortfalls(g, map[string]decimal.Decimal{
		"SKU-A": dec("10"),
		"SKU-C": dec("3"),
	})

	require.Len(t, alloc["early"], 1)
	assert.Equal(t, "SKU-A", alloc["early"][0].SKU)
	require.Len(t, alloc["late"], 1)
	assert.Equal(t, "SKU-C", alloc["late"][0].SKU)
	assert.True(t, dec("3").Equal(alloc["late"][0].Quantity))
}

func TestBuildAdjustedIndent(t *testing.T) {
	t0 := time.Date(2026, 3, 13, 8, 0, 0, 0, time.UTC)
	src := indentWith("src", "R", t0, lineOf("MILK-500", "100", "10"), lineOf("GHEE-1L", "4", "0"))
	src.Facility = "Plant 1"
	now := t0.Add(24 * time.Hour)

	adj, warnings := BuildAdjustedIndent(src, []ShortfallLine{
		{SKU: "MILK-500", UOM: "Nos", Quantity: dec("30")},
		{SKU: "GHEE-1L", UOM: "Nos", Quantity: dec("2")},
	}, NewConverter(testCatalog()), &seqIDs{}, now)

	require.Len(t, warnings, 1)
	assert.ErrorIs(t, warnings[0], ErrMissingConfiguration)

	assert.Equal(t, "id-001", adj.ID)
	assert.True(t, adj.IsAdjusted)
	require.NotNil(t, adj.SourceIndentID)
	assert.Equal(t, "src", *adj.SourceIndentID)
	assert.Equal(t, "Plant 1", adj.Facility)
	assert.Equal(t, models.IndentStatusUnprocessed, adj.Status)
	assert.Equal(t, now, adj.CreatedAt)

	require.Len(t, adj.Lines, 2)
	milk := adj.Lines[0]
	assert.Equal(t, adj.ID, milk.IndentID)
	assert.True(t, dec("30").Equal(milk.RequestedQty))
	assert.True(t, dec("30").Equal(milk.ActualQty))
	assert.Equal(t, int64(1), milk.Crates)
	assert.True(t, dec("6").Equal(milk.Loose))

	ghee := adj.Lines[1]
	assert.Nil(t, ghee.PackagingCapacity)
	assert.True(t, dec("2").Equal(ghee.ActualQty))
}
