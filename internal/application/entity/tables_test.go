package entity

import "testing"

func TestLookupTable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		found bool
	}{
		{"exact", "products", "products", true},
		{"mixed case", "Products", "products", true},
		{"whitespace", "  users ", "users", true},
		{"legacy alias", "product_barcodes", "productbarcodes", true},
		{"settings alias", "settings", "systemsettings", true},
		{"unknown", "invoices", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := LookupTable(tt.input)
			if ok != tt.found {
				t.Fatalf("LookupTable(%q) found = %v, want %v", tt.input, ok, tt.found)
			}
			if ok && spec.Name != tt.want {
				t.Errorf("LookupTable(%q) = %q, want %q", tt.input, spec.Name, tt.want)
			}
		})
	}
}

func TestDependentsRegistered(t *testing.T) {
	users, _ := LookupTable("users")
	if len(users.Dependents) != 2 {
		t.Fatalf("users should have 2 dependents, got %d", len(users.Dependents))
	}

	products, _ := LookupTable("products")
	if len(products.Dependents) != 1 || products.Dependents[0].Table != "productbarcodes" {
		t.Fatalf("products dependents wrong: %+v", products.Dependents)
	}
}

func TestCompositeConflictKeys(t *testing.T) {
	userstores, _ := LookupTable("userstores")
	if len(userstores.ConflictColumns) != 2 {
		t.Fatalf("userstores conflict key should be composite, got %v", userstores.ConflictColumns)
	}
}

func TestInferTableFromPayload(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]any
		want   string
		found  bool
	}{
		{"product shape", map[string]any{"price": 10, "name": "soap", "stock": 5}, "products", true},
		{"user shape", map[string]any{"email": "a@b.c", "role": "admin"}, "users", true},
		{"bill shape", map[string]any{"total": 99.5, "storeId": "s1"}, "bills", true},
		{"store shape", map[string]any{"address": "main st", "name": "shop"}, "stores", true},
		{"case insensitive", map[string]any{"Price": 1, "Name": "x"}, "products", true},
		{"ambiguous nothing", map[string]any{"foo": 1}, "", false},
		{"empty", map[string]any{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, ok := InferTableFromPayload(tt.fields)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && spec.Name != tt.want {
				t.Errorf("inferred %q, want %q", spec.Name, tt.want)
			}
		})
	}
}
