package analyzer

import (
	"reflect"
	"testing"
)

func TestExtractSeries(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Point
	}{
		{
			name: "dollar values on separate lines",
			text: "Widget: $19.99\nGadget: $24.99",
			want: []Point{{"Widget", 19.99}, {"Gadget", 24.99}},
		},
		{
			name: "pairs joined on one line",
			text: "Our picks. Widget: $19.99 Gadget: $24.99 and more",
			want: []Point{{"Widget", 19.99}, {"Gadget", 24.99}},
		},
		{
			name: "markdown bullets and dashes",
			text: "- **Basic plan** - 1,200\n* Pro plan: 2,450.50\n1. Enterprise plan: 9000",
			want: []Point{{"Basic plan", 1200}, {"Pro plan", 2450.50}, {"Enterprise plan", 9000}},
		},
		{
			name: "duplicates keep the first value",
			text: "Widget: $19.99\nwidget: $21.00",
			want: []Point{{"Widget", 19.99}},
		},
		{
			name: "long labels keep trailing words",
			text: "The price we found for the Acme Turbo Widget: $42",
			want: []Point{{"the Acme Turbo Widget", 42}},
		},
		{
			name: "conjunctions separate inline pairs",
			text: "Widget: $19.99 and Gadget: $24.99, Gizmo: $5 or Doohickey - 7",
			want: []Point{{"Widget", 19.99}, {"Gadget", 24.99}, {"Gizmo", 5}, {"Doohickey", 7}},
		},
		{
			name: "labels in a sentence",
			text: "We found the Widget: $19.99; the Gadget: $24.99.",
			want: []Point{{"We found the Widget", 19.99}, {"the Gadget", 24.99}},
		},
		{
			name: "non-ascii labels",
			text: "Éclair: 3\nCrème brûlée: 4.50",
			want: []Point{{"Éclair", 3}, {"Crème brûlée", 4.50}},
		},
		{
			name: "words containing conjunctions are kept",
			text: "Brand Android Portable: 120",
			want: []Point{{"Brand Android Portable", 120}},
		},
		{
			name: "no numbers",
			text: "Widget: cheap\nGadget: expensive",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSeries(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractSeries() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractTable_Pipes(t *testing.T) {
	text := "Here is the comparison:\n\n| Model | Price |\n|---|:---:|\n| Widget | $19.99 |\n| **Gadget** | $24.99 | extra |\n"

	table, ok := ExtractTable(text)
	if !ok {
		t.Fatal("expected a table")
	}
	if !reflect.DeepEqual(table.Headers, []string{"Model", "Price"}) {
		t.Errorf("unexpected headers %v", table.Headers)
	}
	want := [][]string{{"Widget", "$19.99"}, {"Gadget", "$24.99"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("unexpected rows %v", table.Rows)
	}
}

func TestExtractTable_Colons(t *testing.T) {
	table, ok := ExtractTable("- Battery: 10 hours\n- Weight: 1.2 kg\nNo delimiter here")
	if !ok {
		t.Fatal("expected a table")
	}
	if !reflect.DeepEqual(table.Headers, []string{"Item", "Details"}) {
		t.Errorf("unexpected headers %v", table.Headers)
	}
	want := [][]string{{"Battery", "10 hours"}, {"Weight", "1.2 kg"}}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("unexpected rows %v", table.Rows)
	}
}

func TestExtractTable_TooFewRows(t *testing.T) {
	for _, text := range []string{
		"Just one line of prose.",
		"Battery: 10 hours",
		"| Model | Price |\n|---|---|",
	} {
		if _, ok := ExtractTable(text); ok {
			t.Errorf("expected no table for %q", text)
		}
	}
}

func TestExtractTable_ShortRowsArePadded(t *testing.T) {
	table, ok := ExtractTable("| A | B | C |\n| 1 |")
	if !ok {
		t.Fatal("expected a table")
	}
	if !reflect.DeepEqual(table.Rows, [][]string{{"1", "", ""}}) {
		t.Errorf("unexpected rows %v", table.Rows)
	}
}
