package schema

// Tables known to the SAP Business One destination.
var builtinTables = []Table{
	{Name: "OITM", Columns: []string{"ItemCode", "ItemName", "FrgnName", "U_SYP_CONCENTRACION", "U_SYP_FORPR", "U_SYP_FFDET", "U_SYP_FABRICANTE"}, Key: []string{"ItemCode"}},
	{Name: "OWHS", Columns: []string{"WhsCode", "WhsName", "TaxOffice"}, Key: []string{"WhsCode"}},
	{Name: "OWTR", Columns: []string{"DocEntry", "DocNum", "DocDate", "Filler", "ToWhsCode", "U_SYP_MDTD", "U_SYP_MDSD", "U_SYP_MDCD", "ObjType", "CardName", "U_BPP_FECINITRA"}, Key: []string{"DocEntry"}},
	{Name: "WTR1", Columns: []string{"DocEntry", "LineNum", "ItemCode", "Dscription", "WhsCode", "ObjType"}, Key: []string{"DocEntry", "LineNum"}},
	{Name: "OITL", Columns: []string{"LogEntry", "ItemCode", "DocEntry", "DocLine", "DocType", "StockEff", "LocCode"}, Key: []string{"LogEntry"}},
	{Name: "ITL1", Columns: []string{"LogEntry", "ItemCode", "Quantity", "SysNumber", "MdAbsEntry"}, Key: []string{"LogEntry", "ItemCode", "SysNumber"}},
	{Name: "OBTN", Columns: []string{"ItemCode", "DistNumber", "SysNumber", "AbsEntry", "MnfSerial", "ExpDate"}, Key: []string{"ItemCode", "DistNumber"}},
	{Name: "OBTW", Columns: []string{"ItemCode", "MdAbsEntry", "WhsCode", "Location", "AbsEntry"}, Key: []string{"AbsEntry"}},
	{Name: "ODLN", Columns: []string{"DocEntry", "ObjType", "DocNum", "CardCode", "CardName", "NumAtCard", "DocDate", "TaxDate", "U_SYP_MDTD", "U_SYP_MDSD", "U_SYP_MDCD", "U_COB_LUGAREN", "U_BPP_FECINITRA"}, Key: []string{"DocEntry"}},
	{Name: "DLN1", Columns: []string{"DocEntry", "ObjType", "WhsCode", "ItemCode", "LineNum", "Dscription", "UomCode"}, Key: []string{"DocEntry", "LineNum"}},
	{Name: "OINV", Columns: []string{"DocEntry", "NumAtCard", "U_SYP_NGUIA", "ObjType", "DocNum", "CardCode", "CardName", "DocDate", "TaxDate", "U_SYP_MDTD", "U_SYP_MDSD", "U_SYP_MDCD", "U_COB_LUGAREN", "U_BPP_FECINITRA"}, Key: []string{"DocEntry"}},
	{Name: "INV1", Columns: []string{"DocEntry", "ObjType", "WhsCode", "ItemCode", "LineNum", "Dscription", "UomCode", "BaseType", "BaseEntry"}, Key: []string{"DocEntry", "LineNum"}},
	// Batch allocations repeat legitimately per document line; never deduplicated.
	{Name: "IBT1", Columns: []string{"ItemCode", "BatchNum", "WhsCode", "BaseEntry", "BaseType", "BaseLinNum", "Quantity"}},
}

// transferLayout is the flat row of every stock-transfer based document
// (transfer, reception, organoleptic). They differ only in scope.
func transferLayout() []Entity {
	return []Entity{
		{Table: "OITM", Start: 40, End: 47, Optional: true},
		{Table: "OBTN", Start: 29, End: 35, Optional: true},
		{Table: "OBTW", Start: 35, End: 40, Optional: true},
		{Table: "OWTR", Start: 0, End: 11},
		{Table: "WTR1", Start: 11, End: 17, Parent: "OWTR", On: []ColumnPair{{"DocEntry", "DocEntry"}}},
		{Table: "OITL", Start: 17, End: 24, Optional: true, Parent: "OWTR", On: []ColumnPair{{"DocEntry", "DocEntry"}, {"DocType", "ObjType"}}},
		{Table: "ITL1", Start: 24, End: 29, Optional: true, Parent: "OITL", On: []ColumnPair{{"LogEntry", "LogEntry"}}},
	}
}

var transferDates = []string{"U_BPP_FECINITRA", "DocDate"}

var builtinDocuments = []Document{
	{
		Name:        "dispatch",
		Description: "A/R invoices dispatched from a delivery point",
		Root:        "OINV",
		Entities: []Entity{
			{Table: "OITM", Start: 53, End: 60},
			{Table: "OBTN", Start: 30, End: 36, Optional: true},
			{Table: "OBTW", Start: 36, End: 41, Optional: true},
			{Table: "OINV", Start: 0, End: 14},
			{Table: "INV1", Start: 14, End: 23, Parent: "OINV", On: []ColumnPair{{"DocEntry", "DocEntry"}}},
			{Table: "IBT1", Start: 23, End: 30, Optional: true, Parent: "INV1", On: []ColumnPair{{"BaseEntry", "DocEntry"}, {"BaseType", "ObjType"}, {"BaseLinNum", "LineNum"}, {"ItemCode", "ItemCode"}}},
			{Table: "OITL", Start: 41, End: 48, Optional: true, Parent: "OINV", On: []ColumnPair{{"DocEntry", "DocEntry"}, {"DocType", "ObjType"}}},
			{Table: "ITL1", Start: 48, End: 53, Optional: true, Parent: "OITL", On: []ColumnPair{{"LogEntry", "LogEntry"}}},
		},
		Scope: ScopePredicate{
			DateColumns:     []string{"U_BPP_FECINITRA", "DocDate"},
			WarehouseColumn: "U_COB_LUGAREN",
			WindowDays:      2,
		},
	},
	{
		Name:        "sale",
		Description: "Deliveries (sales) by delivery point",
		Root:        "ODLN",
		Entities: []Entity{
			{Table: "OITM", Start: 50, End: 57},
			{Table: "OBTN", Start: 27, End: 33},
			{Table: "OBTW", Start: 33, End: 38},
			{Table: "ODLN", Start: 0, End: 13},
			{Table: "DLN1", Start: 13, End: 20, Parent: "ODLN", On: []ColumnPair{{"DocEntry", "DocEntry"}}},
			{Table: "IBT1", Start: 20, End: 27, Parent: "DLN1", On: []ColumnPair{{"BaseEntry", "DocEntry"}, {"BaseType", "ObjType"}, {"BaseLinNum", "LineNum"}, {"ItemCode", "ItemCode"}}},
			{Table: "OITL", Start: 38, End: 45, Parent: "ODLN", On: []ColumnPair{{"DocEntry", "DocEntry"}, {"DocType", "ObjType"}}},
			{Table: "ITL1", Start: 45, End: 50, Parent: "OITL", On: []ColumnPair{{"LogEntry", "LogEntry"}}},
		},
		Scope: ScopePredicate{
			DateColumns:     []string{"U_BPP_FECINITRA", "DocDate"},
			WarehouseColumn: "U_COB_LUGAREN",
			WindowDays:      7,
		},
	},
	{
		Name:        "transfer",
		Description: "Stock transfers leaving a warehouse towards the distribution centres",
		Root:        "OWTR",
		Entities:    transferLayout(),
		Scope: ScopePredicate{
			DateColumns:      transferDates,
			WarehouseColumn:  "Filler",
			WarehouseAliases: map[string][]string{"15": {"15", "16"}},
			Filters:          []Filter{{Column: "ToWhsCode", Op: OpIn, Values: []string{"01", "09"}}},
		},
	},
	{
		Name:        "reception",
		Description: "Stock transfers received by a warehouse",
		Root:        "OWTR",
		Entities:    transferLayout(),
		Scope: ScopePredicate{
			DateColumns:     transferDates,
			WarehouseColumn: "ToWhsCode",
		},
	},
	{
		Name:        "organoleptic",
		Description: "Received transfers with a legal document number, for organoleptic inspection",
		Root:        "OWTR",
		Entities:    transferLayout(),
		Scope: ScopePredicate{
			DateColumns:     transferDates,
			WarehouseColumn: "ToWhsCode",
			Filters: []Filter{
				{Column: "U_SYP_MDSD", Op: OpNotNull},
				{Column: "U_SYP_MDCD", Op: OpNotNull},
			},
		},
	},
	{
		Name:        "warehouse",
		Description: "Warehouse master data",
		Root:        "OWHS",
		Entities:    []Entity{{Table: "OWHS", Start: 0, End: 3}},
		FullRefresh: true,
	},
	{
		Name:        "item",
		Description: "Item master data",
		Root:        "OITM",
		Entities:    []Entity{{Table: "OITM", Start: 0, End: 7}},
		FullRefresh: true,
	},
	{
		Name:        "batch",
		Description: "Batch numbers not yet expired on the run date",
		Root:        "OBTN",
		Entities:    []Entity{{Table: "OBTN", Start: 0, End: 6}},
		FullRefresh: true,
	},
	{
		Name:        "batch_location",
		Description: "Batch quantities per warehouse bin",
		Root:        "OBTW",
		Entities:    []Entity{{Table: "OBTW", Start: 0, End: 5}},
		FullRefresh: true,
	},
}

// Builtin returns the registry of every document type the migrator ships with.
// It panics if the built-in tables are inconsistent, which only a code change
// can cause.
func Builtin() *Registry {
	r, err := NewRegistry(builtinTables, builtinDocuments)
	if err != nil {
		panic(err)
	}
	return r
}
