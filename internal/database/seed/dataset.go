package seed

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/indentrecon/indentrecon/internal/util"
)

//go:embed dataset.yaml
var defaultDataset []byte

// Dataset is a declarative description of master and transactional data.
type Dataset struct {
	Items         []ItemSpec         `yaml:"items"`
	Indents       []IndentSpec       `yaml:"indents"`
	Demand        []DemandSpec       `yaml:"demand"`
	Orders        []OrderSpec        `yaml:"orders"`
	DeliveryNotes []DeliveryNoteSpec `yaml:"delivery_notes"`
}

// ItemSpec describes an item master record.
type ItemSpec struct {
	SKU               string           `yaml:"sku"`
	Name              string           `yaml:"name"`
	StockUOM          string           `yaml:"stock_uom"`
	PackagingCapacity *int             `yaml:"packaging_capacity"`
	Conversions       []ConversionSpec `yaml:"conversions"`
}

// ConversionSpec maps a UOM to stock units.
type ConversionSpec struct {
	UOM    string `yaml:"uom"`
	Factor string `yaml:"factor"`
}

// IndentSpec describes a source indent.
type IndentSpec struct {
	Route    string           `yaml:"route"`
	Date     string           `yaml:"date"`
	Facility string           `yaml:"facility"`
	Lines    []IndentLineSpec `yaml:"lines"`
}

// IndentLineSpec describes one indent line. Difference is optional.
type IndentLineSpec struct {
	SKU        string `yaml:"sku"`
	Qty        string `yaml:"qty"`
	Difference string `yaml:"difference"`
}

// DemandSpec is a realized demand figure.
type DemandSpec struct {
	Route string `yaml:"route"`
	Date  string `yaml:"date"`
	SKU   string `yaml:"sku"`
	Qty   string `yaml:"qty"`
}

// OrderSpec is a sales order line.
type OrderSpec struct {
	Ref    string `yaml:"ref"`
	Route  string `yaml:"route"`
	Date   string `yaml:"date"`
	SKU    string `yaml:"sku"`
	Qty    string `yaml:"qty"`
	Status string `yaml:"status"`
}

// DeliveryNoteSpec describes a delivery note and its items.
type DeliveryNoteSpec struct {
	Route string             `yaml:"route"`
	Date  string             `yaml:"date"`
	Items []DeliveryItemSpec `yaml:"items"`
}

// DeliveryItemSpec is a delivered quantity in a UOM. An empty UOM means the
// item's stock UOM.
type DeliveryItemSpec struct {
	ItemCode string `yaml:"item_code"`
	UOM      string `yaml:"uom"`
	Qty      string `yaml:"qty"`
}

// DefaultDataset returns the bundled demo dataset.
func DefaultDataset() (*Dataset, error) {
	return ParseDataset(defaultDataset)
}

// LoadDataset reads a dataset from a YAML file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes and validates a YAML dataset.
func ParseDataset(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("parsing dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// Validate checks references and literal formats across the dataset.
func (ds *Dataset) Validate() error {
	var errs []error
	skus := make(map[string]bool, len(ds.Items))

	for i, it := range ds.Items {
		if it.SKU == "" || it.StockUOM == "" {
			errs = append(errs, fmt.Errorf("items[%d]: sku and stock_uom are required", i))
			continue
		}
		if skus[it.SKU] {
			errs = append(errs, fmt.Errorf("items[%d]: duplicate sku %s", i, it.SKU))
		}
		skus[it.SKU] = true
		if it.PackagingCapacity != nil && *it.PackagingCapacity < 1 {
			errs = append(errs, fmt.Errorf("items[%d]: packaging_capacity must be at least 1", i))
		}
		for j, c := range it.Conversions {
			if f, err := decimal.NewFromString(c.Factor); err != nil || !f.IsPositive() {
				errs = append(errs, fmt.Errorf("items[%d].conversions[%d]: factor must be positive", i, j))
			}
		}
	}

	for i, ind := range ds.Indents {
		errs = append(errs, checkDate(fmt.Sprintf("indents[%d]", i), ind.Date))
		for j, l := range ind.Lines {
			where := fmt.Sprintf("indents[%d].lines[%d]", i, j)
			errs = append(errs, checkSKU(where, l.SKU, skus), checkQty(where, l.Qty, true))
			if l.Difference != "" {
				errs = append(errs, checkQty(where+".difference", l.Difference, false))
			}
		}
	}

	for i, d := range ds.Demand {
		where := fmt.Sprintf("demand[%d]", i)
		errs = append(errs, checkDate(where, d.Date), checkSKU(where, d.SKU, skus), checkQty(where, d.Qty, true))
	}

	for i, o := range ds.Orders {
		where := fmt.Sprintf("orders[%d]", i)
		errs = append(errs, checkDate(where, o.Date), checkSKU(where, o.SKU, skus), checkQty(where, o.Qty, true))
	}

	for i, dn := range ds.DeliveryNotes {
		errs = append(errs, checkDate(fmt.Sprintf("delivery_notes[%d]", i), dn.Date))
		for j, it := range dn.Items {
			where := fmt.Sprintf("delivery_notes[%d].items[%d]", i, j)
			errs = append(errs, checkSKU(where, it.ItemCode, skus), checkQty(where, it.Qty, true))
		}
	}

	return errors.Join(errs...)
}

func checkDate(where, s string) error {
	if _, err := util.ParseDate(s); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	return nil
}

func checkSKU(where, sku string, known map[string]bool) error {
	if !known[sku] {
		return fmt.Errorf("%s: unknown sku %q", where, sku)
	}
	return nil
}

func checkQty(where, s string, nonNegative bool) error {
	q, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("%s: invalid quantity %q", where, s)
	}
	if nonNegative && q.IsNegative() {
		return fmt.Errorf("%s: quantity must not be negative", where)
	}
	return nil
}
