package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestIntType(t *testing.T) {
	typ := Int()

	if typ.Name() != "int" {
		t.Errorf("Name() = %q, want %q", typ.Name(), "int")
	}

	tests := []struct {
		value   any
		wantErr bool
	}{
		{42, false},
		{int8(42), false},
		{int64(42), false},
		{float64(42), false},  // whole number
		{float64(42.5), true}, // not whole
		{"42", true},
		{true, true},
		{nil, true},
	}

	for _, tt := range tests {
		err := typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
	}
}

func TestSliceType(t *testing.T) {
	stringSlice := Slice(String())
	intSlice := Slice(Int())

	tests := []struct {
		typ     Type
		value   any
		wantErr bool
		desc    string
	}{
		{stringSlice, []string{"a", "b"}, false, "string slice"},
		{stringSlice, []string{}, false, "empty string slice"},
		{stringSlice, []any{"a", "b"}, false, "any slice with strings"},
		{stringSlice, []int{1, 2}, true, "slice of ints when expecting strings"},
		{stringSlice, "not a slice", true, "string instead of slice"},
		{intSlice, []any{1, "2", 3}, true, "mixed slice"},
	}

	for _, tt := range tests {
		err := tt.typ.Validate(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate(%v) error = %v, wantErr %v", tt.desc, tt.value, err, tt.wantErr)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ     Type
		value   any
		want    any
		wantErr bool
	}{
		{String(), "prod", "prod", false},
		{String(), json.Number("12"), "12", false},
		{String(), 12, nil, true},
		{Int(), "42", int64(42), false},
		{Int(), " 7 ", int64(7), false},
		{Int(), json.Number("9"), int64(9), false},
		{Int(), int32(3), int64(3), false},
		{Int(), float64(4), int64(4), false},
		{Int(), "4.5", nil, true},
		{Float(), "0.25", 0.25, false},
		{Float(), 2, float64(2), false},
		{Float(), json.Number("1.5"), 1.5, false},
		{Bool(), "true", true, false},
		{Bool(), "0", false, false},
		{Bool(), "maybe", nil, true},
		{Duration(), "90s", "1m30s", false},
		{Duration(), 2 * time.Second, "2s", false},
		{Duration(), "soon", nil, true},
		{Slice(String()), "api, web", []any{"api", "web"}, false},
		{Slice(Int()), "1,2", []any{int64(1), int64(2)}, false},
		{Slice(Int()), []any{json.Number("3")}, []any{int64(3)}, false},
		{Slice(String()), "", []any{}, false},
		{Slice(Int()), "1,x", nil, true},
	}

	for _, tt := range tests {
		got, err := tt.typ.Coerce(tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s.Coerce(%#v) error = %v, wantErr %v", tt.typ.Name(), tt.value, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s.Coerce(%#v) = %#v, want %#v", tt.typ.Name(), tt.value, got, tt.want)
		}
	}
}

func TestCustomType(t *testing.T) {
	evenNumber := Custom("even", func(v any) error {
		i, ok := v.(int)
		if !ok {
			return errors.New("not an int")
		}
		if i%2 != 0 {
			return errors.New("not even")
		}
		return nil
	})

	if evenNumber.Name() != "even" {
		t.Errorf("Name() = %q, want %q", evenNumber.Name(), "even")
	}
	if _, err := evenNumber.Coerce(4); err != nil {
		t.Errorf("Coerce(4) error = %v", err)
	}
	if _, err := evenNumber.Coerce(3); err == nil {
		t.Error("Coerce(3) should fail")
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		input    string
		wantErr  bool
		wantName string
	}{
		{"string", false, "string"},
		{"int", false, "int"},
		{"float", false, "float"},
		{"bool", false, "bool"},
		{"duration", false, "duration"},
		{"[string]", false, "[string]"},
		{"[[string]]", false, "[[string]]"},
		{"invalid", true, ""},
		{"[invalid]", true, ""},
	}

	for _, tt := range tests {
		typ, err := ParseType(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && typ.Name() != tt.wantName {
			t.Errorf("ParseType(%q) Name() = %q, want %q", tt.input, typ.Name(), tt.wantName)
		}
	}
}
