package ucum

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseUnit(t *testing.T) {
	tests := []struct {
		name string
		unit string
		want Expr
	}{
		{"empty is dimensionless", "", Expr{}},
		{"bare 1 is dimensionless", "1", Expr{}},
		{"single atom", "kg", Expr{"kg": 1}},
		{"product", "kg.m", Expr{"kg": 1, "m": 1}},
		{"quotient", "kg/s", Expr{"kg": 1, "s": -1}},
		{"explicit exponent", "m2", Expr{"m": 2}},
		{"negative exponent", "s-2", Expr{"s": -2}},
		{"compound force", "kg.m.s-2", Expr{"kg": 1, "m": 1, "s": -2}},
		{"denominator is sticky after slash", "g/m.s", Expr{"g": 1, "m": -1, "s": -1}},
		{"bracketed annex atom", "[in_i]", Expr{"[in_i]": 1}},
		{"numeric count atom", "10*9/L", Expr{"10*9": 1, "L": -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnit(tt.unit)
			if err != nil {
				t.Fatalf("ParseUnit(%q) error: %v", tt.unit, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseUnit(%q) = %v, want %v", tt.unit, got, tt.want)
			}
			for atom, exp := range tt.want {
				if got[atom] != exp {
					t.Errorf("ParseUnit(%q)[%q] = %d, want %d", tt.unit, atom, got[atom], exp)
				}
			}
		})
	}
}

func TestParseUnit_Malformed(t *testing.T) {
	for _, unit := range []string{"kg..m", "kg/", "/kg", "kg.kg-1", "kg.s/kg"} {
		if _, err := ParseUnit(unit); err == nil {
			t.Errorf("ParseUnit(%q) expected error, got nil", unit)
		}
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"dimensionless", Expr{}, "1"},
		{"single atom", Expr{"kg": 1}, "kg"},
		{"product sorted", Expr{"m": 1, "kg": 1}, "kg.m"},
		{"negative exponent", Expr{"s": -2}, "s-2"},
		{"force", Expr{"kg": 1, "m": 1, "s": -2}, "kg.m.s-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.expr); got != tt.want {
				t.Errorf("Format(%v) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestMultiplyDivideExpr(t *testing.T) {
	kg, _ := ParseUnit("kg")
	m, _ := ParseUnit("m")
	s2, _ := ParseUnit("s2")

	if got := Format(MultiplyExpr(kg, m)); got != "kg.m" {
		t.Errorf("MultiplyExpr(kg, m) = %q, want kg.m", got)
	}
	if got := Format(DivideExpr(kg, s2)); got != "kg.s-2" {
		t.Errorf("DivideExpr(kg, s2) = %q, want kg.s-2", got)
	}
	if got := Format(DivideExpr(kg, kg)); got != "1" {
		t.Errorf("DivideExpr(kg, kg) = %q, want 1", got)
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		unit      string
		wantValue string
		wantUnit  string
	}{
		{"kg to g", "1", "kg", "1000", "g"},
		{"mg to g", "100", "mg", "0.1", "g"},
		{"g unchanged", "5", "g", "5", "g"},
		{"min to s", "1", "min", "60", "s"},
		{"composite mass-length", "2.5", "kg.m", "2500", "g.m"},
		{"composite cancels to base mass", "1", "kg.ms/s", "1", "g"},
		{"mass concentration", "5", "mg/dL", "0.05", "L-1.g"},
		{"molar concentration", "1", "mmol/L", "0.001", "L-1.mol"},
		{"power-of-ten scalar absorbed", "1", "10*9/L", "1000000000", "L-1"},
		{"cell count scales match", "1000", "10*9/L", "1000000000000", "L-1"},
		{"cell count trillions", "1", "10*12/L", "1000000000000", "L-1"},
		{"thousands per microliter", "1", "10*3/uL", "1000000000", "L-1"},
		{"milli international units", "1", "m[IU]/mL", "1", "L-1.[IU]"},
		{"unknown atom passes through", "42", "unknownUnit", "42", "unknownUnit"},
		{"dimensionless", "7", "", "7", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			val := decimal.RequireFromString(tt.value)
			gotVal, gotUnit, err := Canonicalize(val, tt.unit)
			if err != nil {
				t.Fatalf("Canonicalize(%s, %q) error: %v", tt.value, tt.unit, err)
			}
			want := decimal.RequireFromString(tt.wantValue)
			if !gotVal.Equal(want) {
				t.Errorf("Canonicalize(%s, %q).value = %s, want %s", tt.value, tt.unit, gotVal, want)
			}
			if gotUnit != tt.wantUnit {
				t.Errorf("Canonicalize(%s, %q).unit = %q, want %q", tt.value, tt.unit, gotUnit, tt.wantUnit)
			}
		})
	}
}

func TestCanonicalize_CaseInsensitiveLookup(t *testing.T) {
	val := decimal.RequireFromString("1")
	got, unit, err := Canonicalize(val, "KG")
	if err != nil {
		t.Fatalf("Canonicalize error: %v", err)
	}
	if unit != "g" || !got.Equal(decimal.RequireFromString("1000")) {
		t.Errorf("Canonicalize(1, KG) = %s %s, want 1000 g", got, unit)
	}
}

func TestCanonicalize_PreservesDecimalPrecision(t *testing.T) {
	// A value with more significant digits than float64's mantissa carries
	// exactly through canonicalization instead of rounding.
	val := decimal.RequireFromString("1.123456789012345678")
	got, unit, err := Canonicalize(val, "g")
	if err != nil {
		t.Fatalf("Canonicalize error: %v", err)
	}
	if unit != "g" || !got.Equal(val) {
		t.Errorf("Canonicalize(%s, g) = %s %s, want unchanged", val, got, unit)
	}
}
