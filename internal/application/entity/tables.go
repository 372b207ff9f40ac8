package entity

import "strings"

// Dependent is a child table whose rows must be removed before a parent row
// can be deleted.
type Dependent struct {
	Table    string
	FKColumn string
}

// TableSpec declares everything the engine needs to know about one remote
// table: its conflict key for upserts, its local mirror document, and the
// child tables that depend on it. Table identity is always explicit here;
// payload-shape guessing exists only as the pull pipeline's legacy fallback.
type TableSpec struct {
	// Name is the remote table name (lowercase, supabase convention).
	Name string
	// MirrorFile is the local JSON document, empty for tables that have no
	// offline mirror (pure join tables, billitems).
	MirrorFile string
	// ConflictColumns form the upsert key.
	ConflictColumns []string
	// Dependents are cleaned up before a DELETE of this table's row.
	Dependents []Dependent
	// UpdatedAtColumn is used for the server-wins conflict comparison.
	UpdatedAtColumn string
	// SingleObject marks a mirror that is one JSON object, not a list.
	SingleObject bool
	// PlaceholderDefaults are the minimal non-null columns for a synthesized
	// placeholder parent. The name column is tagged __placeholder_<table>__<id>.
	PlaceholderDefaults map[string]any
}

// KeyedByID reports whether the table's upsert key is the plain id column.
// Lookups by record id only make sense for these tables.
func (s TableSpec) KeyedByID() bool {
	return len(s.ConflictColumns) == 1 && s.ConflictColumns[0] == "id"
}

var registry = map[string]TableSpec{
	"products": {
		Name:            "products",
		MirrorFile:      "products.json",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updatedat",
		Dependents: []Dependent{
			{Table: "productbarcodes", FKColumn: "productid"},
		},
		PlaceholderDefaults: map[string]any{"price": 0, "stock": 0},
	},
	"stores": {
		Name:            "stores",
		MirrorFile:      "stores.json",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updatedat",
		Dependents: []Dependent{
			{Table: "userstores", FKColumn: "storeid"},
		},
		PlaceholderDefaults: map[string]any{"status": "inactive"},
	},
	"users": {
		Name:            "users",
		MirrorFile:      "users.json",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updatedat",
		Dependents: []Dependent{
			{Table: "userstores", FKColumn: "userid"},
			{Table: "passwordresettokens", FKColumn: "userid"},
		},
		PlaceholderDefaults: map[string]any{"email": "", "role": "staff", "status": "inactive"},
	},
	"customers": {
		Name:            "customers",
		MirrorFile:      "customers.json",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updatedat",
	},
	"bills": {
		Name:            "bills",
		MirrorFile:      "bills.json",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updated_at",
		Dependents: []Dependent{
			{Table: "billitems", FKColumn: "billid"},
		},
	},
	"billitems": {
		Name:            "billitems",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updated_at",
	},
	"userstores": {
		Name:            "userstores",
		ConflictColumns: []string{"userid", "storeid"},
	},
	"productbarcodes": {
		Name:            "productbarcodes",
		ConflictColumns: []string{"productid", "barcode"},
	},
	"passwordresettokens": {
		Name:            "passwordresettokens",
		ConflictColumns: []string{"id"},
	},
	"notifications": {
		Name:            "notifications",
		MirrorFile:      "notifications.json",
		ConflictColumns: []string{"id"},
	},
	"systemsettings": {
		Name:            "systemsettings",
		MirrorFile:      "settings.json",
		ConflictColumns: []string{"id"},
		UpdatedAtColumn: "updated_at",
		SingleObject:    true,
	},
}

// legacy spellings seen in older mirror files and audit rows
var tableAliases = map[string]string{
	"product_barcodes": "productbarcodes",
	"bill_items":       "billitems",
	"user_stores":      "userstores",
	"settings":         "systemsettings",
	"system_settings":  "systemsettings",
}

// LookupTable resolves a logical table name ("Products", "userstores",
// "SystemSettings") to its spec. The second result is false for tables the
// engine does not synchronize.
func LookupTable(name string) (TableSpec, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := tableAliases[key]; ok {
		key = alias
	}
	spec, ok := registry[key]
	return spec, ok
}

// Tables returns the specs of every registered table.
func Tables() []TableSpec {
	out := make([]TableSpec, 0, len(registry))
	for _, spec := range registry {
		out = append(out, spec)
	}
	return out
}

// InferTableFromPayload guesses a table from the fields present in a pulled
// change row that carries no table identity. This is a last-resort path for
// malformed legacy data; callers must log when they fall back to it.
func InferTableFromPayload(fields map[string]any) (TableSpec, bool) {
	has := func(keys ...string) bool {
		for _, k := range keys {
			found := false
			for f := range fields {
				if strings.EqualFold(f, k) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}

	switch {
	case has("price", "name"):
		return registry["products"], true
	case has("email", "role"):
		return registry["users"], true
	case has("total", "storeId"):
		return registry["bills"], true
	case has("address", "name"):
		return registry["stores"], true
	default:
		return TableSpec{}, false
	}
}
