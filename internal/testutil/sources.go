package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// Source file fixtures modelled on the NexGen logistics extracts. Four
// orders; ORD000002 has no delivery record; warehouse and fleet locations
// are unique per origin so the baseline merge has no fan-out; Bangalore has
// no vehicle.
const (
	OrdersCSV = `Order_ID,Order_Date,Customer_Segment,Priority,Product_Category,Order_Value_INR,Origin,Destination,Special_Handling
ORD000001,2024-09-01,Enterprise,Express,Electronics,15230.50,Mumbai,Delhi,
ORD000002,2024-09-02,SMB,Standard,Fashion,2450.00,Delhi,Pune,Fragile
ORD000003,2024-09-03,Individual,Economy,Books,899.99,Bangalore,Chennai,
ORD000004,2024-09-04,Enterprise,Express,Healthcare,7800.00,Kolkata,Mumbai,Temperature_Controlled
`

	DeliveryCSV = `Order_ID,Carrier,Promised_Delivery_Days,Actual_Delivery_Days,Delivery_Status,Quality_Issue,Customer_Rating,Delivery_Cost_INR
ORD000001,SpeedyLogistics,2,3,Slightly-Delayed,Perfect,4,320.50
ORD000003,QuickShip,5,5,On-Time,Perfect,5,110.00
ORD000004,BlueDart,1,4,Severely-Delayed,Wrong_Item,2,560.75
`

	RoutesCSV = `Order_ID,Route,Distance_KM,Fuel_Consumption_L,Toll_Charges_INR,Traffic_Delay_Minutes,Weather_Impact
ORD000001,Mumbai-Delhi,1420.5,180.2,1250.00,45,None
ORD000002,Delhi-Pune,1460.0,185.0,1100.00,30,Light_Rain
ORD000003,Bangalore-Chennai,346.0,42.5,320.00,10,None
ORD000004,Kolkata-Mumbai,1960.0,250.8,1800.00,120,Heavy_Rain
`

	FeedbackCSV = `Order_ID,Feedback_Date,Rating,Feedback_Text,Would_Recommend,Issue_Category
ORD000001,2024-09-05,4,"Late, but courteous driver",Yes,Timing
ORD000004,2024-09-09,2,Wrong item delivered,No,Item_Quality
`

	CostCSV = `Order_ID,Fuel_Cost,Labor_Cost,Vehicle_Maintenance,Insurance,Packaging_Cost,Technology_Platform_Fee,Other_Overhead
ORD000001,150.20,80.00,25.00,15.00,20.30,10.00,20.00
ORD000002,160.00,85.00,27.00,15.00,12.00,10.00,18.00
ORD000003,40.00,30.00,8.00,5.00,10.00,10.00,7.00
ORD000004,210.50,120.00,40.00,25.00,60.25,10.00,95.00
`

	WarehouseCSV = `Warehouse_ID,Location,Product_Category,Current_Stock_Units,Reorder_Level,Storage_Cost_per_Unit,Last_Restocked_Date
WH001,Mumbai,Electronics,540,100,12.50,2024-08-20
WH002,Delhi,Fashion,820,150,6.75,2024-08-22
WH003,Bangalore,Books,310,80,3.20,2024-08-18
WH004,Kolkata,Healthcare,150,60,18.00,2024-08-25
`

	FleetCSV = `Vehicle_ID,Vehicle_Type,Capacity_KG,Fuel_Efficiency_KM_per_L,Current_Location,Status,Age_Years,CO2_Emissions_Kg_per_KM
VEH001,Large_Truck,12000,4.5,Mumbai,Available,3.5,0.92
VEH002,Small_Van,1500,11.2,Delhi,In_Transit,1.2,0.31
VEH003,Refrigerated,5000,6.8,Kolkata,Available,4.0,0.67
`

	// FleetFanoutCSV adds a second vehicle in Mumbai, so ORD000001 matches
	// two fleet rows.
	FleetFanoutCSV = FleetCSV + "VEH004,Express_Bike,40,45.0,Mumbai,Available,0.8,0.05\n"
)

// Source file names.
const (
	OrdersFile    = "orders.csv"
	DeliveryFile  = "delivery_performance.csv"
	RoutesFile    = "routes_distance.csv"
	FleetFile     = "vehicle_fleet.csv"
	WarehouseFile = "warehouse_inventory.csv"
	FeedbackFile  = "customer_feedback.csv"
	CostFile      = "cost_breakdown.csv"
)

// MergedColumnCount is the column count of a merge over the default fixtures.
const MergedColumnCount = 49

// DefaultSources returns the default fixture content keyed by file name.
func DefaultSources() map[string]string {
	return map[string]string{
		OrdersFile:    OrdersCSV,
		DeliveryFile:  DeliveryCSV,
		RoutesFile:    RoutesCSV,
		FleetFile:     FleetCSV,
		WarehouseFile: WarehouseCSV,
		FeedbackFile:  FeedbackCSV,
		CostFile:      CostCSV,
	}
}

// SourceOption customises the fixtures written by WriteSources.
type SourceOption func(map[string]string)

// WithFile replaces the content of one source file.
func WithFile(name, content string) SourceOption {
	return func(m map[string]string) { m[name] = content }
}

// WithoutFile omits one source file.
func WithoutFile(name string) SourceOption {
	return func(m map[string]string) { delete(m, name) }
}

// WriteSources writes the seven source files into dir.
func WriteSources(t testing.TB, dir string, opts ...SourceOption) {
	t.Helper()

	files := DefaultSources()
	for _, opt := range opts {
		opt(files)
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}
