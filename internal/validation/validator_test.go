package validation

import (
	"errors"
	"testing"
)

type sample struct {
	Name  string `validate:"required"`
	Count int    `validate:"min=1,max=10"`
}

func TestStruct(t *testing.T) {
	if err := Struct(&sample{Name: "a", Count: 3}); err != nil {
		t.Fatalf("valid struct rejected: %v", err)
	}

	err := Struct(&sample{Count: 11})
	var verrs Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected Errors, got %T (%v)", err, err)
	}
	if len(verrs) != 2 {
		t.Fatalf("got %d field errors, want 2: %v", len(verrs), verrs)
	}
	if verrs[0].Field != "sample.Name" || verrs[0].Tag != "required" {
		t.Errorf("first error = %+v", verrs[0])
	}
	if verrs[1].Tag != "max" || verrs[1].Param != "10" {
		t.Errorf("second error = %+v", verrs[1])
	}
}

func TestVar(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		tag     string
		wantErr bool
	}{
		{"rating in range", 7, "min=0,max=10", false},
		{"rating too high", 12, "min=0,max=10", true},
		{"empty name", "", "required", true},
		{"date", "2024-05-01", "datetime=2006-01-02", false},
		{"bad date", "05/01/2024", "datetime=2006-01-02", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Var("field", tt.value, tt.tag)
			if (err != nil) != tt.wantErr {
				t.Errorf("Var(%v, %q) error = %v, wantErr %v", tt.value, tt.tag, err, tt.wantErr)
			}
			if err != nil && err.Error()[:5] != "field" {
				t.Errorf("error not reported under field name: %v", err)
			}
		})
	}
}
