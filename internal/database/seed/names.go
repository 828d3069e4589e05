// Package seed populates a store with demo items, indents, demand and
// delivery notes, either from a YAML dataset or generated at random.
package seed

// RouteNames are the distribution routes used by generated data.
var RouteNames = []string{
	"R-NORTH", "R-SOUTH", "R-EAST", "R-WEST", "R-CENTRAL",
	"R-HARBOUR", "R-HILLS", "R-RING", "R-AIRPORT", "R-MARKET",
}

// OutletNames are the facilities placing indents.
var OutletNames = []string{
	"Station Kiosk", "Market Stall 4", "Hospital Canteen", "Campus Store",
	"Lakeview Dairy", "Bus Depot Booth", "Temple Street Shop", "Mill Road Store",
	"Clocktower Outlet", "Riverside Parlour", "Old Town Kiosk", "Tech Park Cafe",
	"Sunrise Booth", "Green Park Store", "Harbour Outlet", "Junction Shop",
}
