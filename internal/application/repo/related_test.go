package repo

import (
	"reflect"
	"testing"
)

func TestParseBarcodes(t *testing.T) {
	tests := []struct {
		name   string
		raw    any
		want   []string
		wantOK bool
	}{
		{"list of strings", []any{"111", "222"}, []string{"111", "222"}, true},
		{"list with duplicates and blanks", []any{"222", "111", "", "222"}, []string{"111", "222"}, true},
		{"list of numbers", []any{float64(111), float64(222)}, []string{"111", "222"}, true},
		{"flattened string", "111, 222,333", []string{"111", "222", "333"}, true},
		{"single value string", "111", []string{"111"}, true},
		{"empty string", "", nil, true},
		{"nil", nil, nil, true},
		{"unexpected shape", map[string]any{"a": 1}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseBarcodes(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseBarcodes() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildInsertQuery(t *testing.T) {
	got := buildInsertQuery("billitems", []string{"billid", "productid", "quantity"})
	want := `INSERT INTO "billitems" ("billid", "productid", "quantity") VALUES ($1, $2, $3)`
	if got != want {
		t.Errorf("query = %s, want %s", got, want)
	}
}
