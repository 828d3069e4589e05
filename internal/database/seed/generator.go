package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/indentrecon/indentrecon/internal/models"
	"github.com/indentrecon/indentrecon/internal/reconcile"
	"github.com/indentrecon/indentrecon/internal/repository"
	"github.com/indentrecon/indentrecon/internal/util"
)

// Config configures random data generation on top of a dataset.
type Config struct {
	// Date is the route date of generated indents.
	Date time.Time
	// Routes is how many routes from RouteNames get random indents. Zero
	// disables random generation.
	Routes int
	// IndentsPerRoute is the number of outlets indenting on each route.
	IndentsPerRoute int
	// ShortfallRate is the probability that a route/SKU gets realized demand
	// above what was indented.
	ShortfallRate float64
	RandomSeed    int64
}

// DefaultConfig returns a default seed configuration.
func DefaultConfig(date time.Time) Config {
	return Config{
		Date:            date,
		Routes:          0,
		IndentsPerRoute: 4,
		ShortfallRate:   0.4,
		RandomSeed:      2026,
	}
}

// Result counts what a generation run wrote.
type Result struct {
	Items         int
	Indents       int
	IndentLines   int
	DemandRows    int
	OrderLines    int
	DeliveryNotes int
	Warnings      []string
}

// Generator writes seed data through the repositories in one transaction.
type Generator struct {
	db    *sql.DB
	cfg   Config
	rng   *rand.Rand
	idGen *util.IDGenerator

	itemRepo     *repository.ItemRepository
	indentRepo   *repository.IndentRepository
	demandRepo   *repository.DemandRepository
	deliveryRepo *repository.DeliveryRepository

	catalog reconcile.StaticCatalog
	editor  *reconcile.IndentLineEditor
	result  Result
}

// NewGenerator creates a new seed data generator.
func NewGenerator(db *sql.DB, cfg Config) *Generator {
	return &Generator{
		db:           db,
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(cfg.RandomSeed)),
		idGen:        util.NewIDGenerator(),
		itemRepo:     repository.NewItemRepository(db),
		indentRepo:   repository.NewIndentRepository(db),
		demandRepo:   repository.NewDemandRepository(db),
		deliveryRepo: repository.NewDeliveryRepository(db),
	}
}

// Generate writes ds and then any random indents configured.
func (g *Generator) Generate(ctx context.Context, ds *Dataset) (*Result, error) {
	slog.Info("starting seed data generation",
		"items", len(ds.Items),
		"indents", len(ds.Indents),
		"random_routes", g.cfg.Routes,
	)

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := g.generateItems(ctx, tx, ds.Items); err != nil {
		return nil, fmt.Errorf("generating items: %w", err)
	}
	if err := g.generateIndents(ctx, tx, ds.Indents); err != nil {
		return nil, fmt.Errorf("generating indents: %w", err)
	}
	if err := g.generateDemand(ctx, tx, ds.Demand); err != nil {
		return nil, fmt.Errorf("generating demand: %w", err)
	}
	if err := g.generateOrders(ctx, tx, ds.Orders); err != nil {
		return nil, fmt.Errorf("generating orders: %w", err)
	}
	if err := g.generateDeliveryNotes(ctx, tx, ds.DeliveryNotes); err != nil {
		return nil, fmt.Errorf("generating delivery notes: %w", err)
	}
	if g.cfg.Routes > 0 {
		if err := g.generateRandom(ctx, tx); err != nil {
			return nil, fmt.Errorf("generating random indents: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	slog.Info("seed data generation complete",
		"indents", g.result.Indents,
		"demand_rows", g.result.DemandRows,
		"warnings", len(g.result.Warnings),
	)
	return &g.result, nil
}

func (g *Generator) generateItems(ctx context.Context, tx *sql.Tx, specs []ItemSpec) error {
	items := make([]*models.Item, 0, len(specs))
	for _, s := range specs {
		item := &models.Item{
			SKU:               s.SKU,
			Name:              s.Name,
			StockUOM:          s.StockUOM,
			PackagingCapacity: s.PackagingCapacity,
		}
		for _, c := range s.Conversions {
			item.Conversions = append(item.Conversions, models.UOMConversion{
				UOM:    c.UOM,
				Factor: decimal.RequireFromString(c.Factor),
			})
		}
		if err := g.itemRepo.Upsert(ctx, tx, item); err != nil {
			return err
		}
		items = append(items, item)
	}

	// Items already in the store still count for conversion.
	existing, err := g.itemRepo.All(ctx, tx)
	if err != nil {
		return err
	}
	g.catalog = reconcile.NewStaticCatalog(existing)
	g.editor = reconcile.NewIndentLineEditor(reconcile.NewConverter(g.catalog))
	g.result.Items = len(items)
	return nil
}

func (g *Generator) generateIndents(ctx context.Context, tx *sql.Tx, specs []IndentSpec) error {
	for i, s := range specs {
		date, _ := util.ParseDate(s.Date)
		indent := &models.Indent{
			ID:       g.idGen.NewID(),
			Route:    s.Route,
			Date:     date,
			Facility: s.Facility,
			Status:   models.IndentStatusUnprocessed,
			// Keep dataset order as creation order so allocation is stable.
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}
		for _, ls := range s.Lines {
			diff := decimal.Zero
			if ls.Difference != "" {
				diff = decimal.RequireFromString(ls.Difference)
			}
			line, err := g.buildLine(ls.SKU, decimal.RequireFromString(ls.Qty), diff)
			if err != nil {
				return err
			}
			indent.Lines = append(indent.Lines, line)
		}
		if err := g.indentRepo.Create(ctx, tx, indent); err != nil {
			return err
		}
		g.result.Indents++
		g.result.IndentLines += len(indent.Lines)
	}
	return nil
}

// buildLine runs a new line through the editor. Packaging warnings are kept
// in the result and do not fail generation.
func (g *Generator) buildLine(sku string, qty, diff decimal.Decimal) (models.IndentLine, error) {
	line := models.IndentLine{ID: g.idGen.NewID()}

	var warning error
	line, err := g.editor.SetSKU(line, sku)
	if err != nil {
		if !reconcile.IsWarning(err) {
			return line, err
		}
		warning = err
	}
	line, err = g.editor.SetRequestedQty(line, qty)
	if err != nil {
		if !reconcile.IsWarning(err) {
			return line, err
		}
		if warning == nil {
			warning = err
		}
	}
	if warning != nil {
		g.result.Warnings = append(g.result.Warnings, warning.Error())
	}
	return g.editor.SetDifference(line, diff)
}

func (g *Generator) generateDemand(ctx context.Context, tx *sql.Tx, specs []DemandSpec) error {
	for _, s := range specs {
		date, _ := util.ParseDate(s.Date)
		err := g.demandRepo.Set(ctx, tx, &models.RealizedDemand{
			Route:    s.Route,
			Date:     date,
			SKU:      s.SKU,
			Quantity: decimal.RequireFromString(s.Qty),
		})
		if err != nil {
			return err
		}
		g.result.DemandRows++
	}
	return nil
}

func (g *Generator) generateOrders(ctx context.Context, tx *sql.Tx, specs []OrderSpec) error {
	for _, s := range specs {
		date, _ := util.ParseDate(s.Date)
		status := models.OrderStatus(s.Status)
		if status == "" {
			status = models.OrderStatusConfirmed
		}
		err := g.demandRepo.CreateOrderLine(ctx, tx, &models.OrderLine{
			ID:       g.idGen.NewID(),
			OrderRef: s.Ref,
			Route:    s.Route,
			Date:     date,
			SKU:      s.SKU,
			Quantity: decimal.RequireFromString(s.Qty),
			Status:   status,
		})
		if err != nil {
			return err
		}
		g.result.OrderLines++
	}
	return nil
}

func (g *Generator) generateDeliveryNotes(ctx context.Context, tx *sql.Tx, specs []DeliveryNoteSpec) error {
	for _, s := range specs {
		date, _ := util.ParseDate(s.Date)
		note := &models.DeliveryNote{
			ID:    g.idGen.NewID(),
			Route: s.Route,
			Date:  date,
		}
		for _, is := range s.Items {
			item, ok := g.catalog.Item(is.ItemCode)
			if !ok {
				return fmt.Errorf("unknown item %s", is.ItemCode)
			}
			uom := is.UOM
			if uom == "" {
				uom = item.StockUOM
			}
			factor, ok := item.ConversionFactor(uom)
			if !ok {
				return fmt.Errorf("no conversion for %s in %s", item.SKU, uom)
			}
			qty := decimal.RequireFromString(is.Qty)
			note.Items = append(note.Items, models.DeliveryNoteItem{
				ItemCode:         item.SKU,
				UOM:              uom,
				StockUOM:         item.StockUOM,
				Qty:              qty,
				ConversionFactor: factor,
				StockQty:         qty.Mul(factor),
			})
		}
		if err := g.deliveryRepo.CreateDeliveryNote(ctx, tx, note); err != nil {
			return err
		}
		g.result.DeliveryNotes++
	}
	return nil
}

// generateRandom creates indents for cfg.Routes routes with realized demand
// that sometimes exceeds what was indented.
func (g *Generator) generateRandom(ctx context.Context, tx *sql.Tx) error {
	if len(g.catalog) == 0 {
		return fmt.Errorf("random generation needs at least one item")
	}
	skus := make([]string, 0, len(g.catalog))
	for sku := range g.catalog {
		skus = append(skus, sku)
	}
	// map iteration order is random, the rng must not depend on it
	slices.Sort(skus)

	routes := min(g.cfg.Routes, len(RouteNames))
	for r := 0; r < routes; r++ {
		route := RouteNames[r]
		indented := make(map[string]decimal.Decimal)

		for n := 0; n < g.cfg.IndentsPerRoute; n++ {
			indent := &models.Indent{
				ID:        g.idGen.NewID(),
				Route:     route,
				Date:      g.cfg.Date,
				Facility:  OutletNames[g.rng.Intn(len(OutletNames))],
				Status:    models.IndentStatusUnprocessed,
				CreatedAt: time.Now().UTC().Add(time.Duration(r*100+n) * time.Millisecond),
			}
			for _, sku := range skus {
				if g.rng.Float64() < 0.3 {
					continue
				}
				qty := decimal.NewFromInt(int64(1 + g.rng.Intn(120)))
				line, err := g.buildLine(sku, qty, decimal.Zero)
				if err != nil {
					return err
				}
				indent.Lines = append(indent.Lines, line)
				indented[sku] = indented[sku].Add(qty)
			}
			if len(indent.Lines) == 0 {
				continue
			}
			if err := g.indentRepo.Create(ctx, tx, indent); err != nil {
				return err
			}
			g.result.Indents++
			g.result.IndentLines += len(indent.Lines)
		}

		for _, sku := range skus {
			qty, ok := indented[sku]
			if !ok {
				continue
			}
			if g.rng.Float64() < g.cfg.ShortfallRate {
				qty = qty.Add(decimal.NewFromInt(int64(1 + g.rng.Intn(30))))
			} else {
				qty = decimal.Max(qty.Sub(decimal.NewFromInt(int64(g.rng.Intn(10)))), decimal.Zero)
			}
			err := g.demandRepo.Set(ctx, tx, &models.RealizedDemand{
				Route: route, Date: g.cfg.Date, SKU: sku, Quantity: qty,
			})
			if err != nil {
				return err
			}
			g.result.DemandRows++
		}
	}

	slog.Debug("random indents generated", "routes", routes)
	return nil
}
