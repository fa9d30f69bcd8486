package analyzer

import (
	"regexp"
	"strconv"
	"strings"
)

// Point is one labelled value of a chart series.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Table is a header row plus data rows of equal width.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// MaxLabelWords caps chart labels; longer labels keep their trailing words.
const MaxLabelWords = 4

var (
	pairRe      = regexp.MustCompile(`(\p{L}[^:|$\n]*?)\s*(?::|\s[-–]\s)\s*\$?\s*(\d[\d,]*(?:\.\d+)?)`)
	labelCutRe  = regexp.MustCompile(`(?i)(?:[.;,!?()\[\]&]|\b(?:and|or)\b)\s*`)
	separatorRe = regexp.MustCompile(`^:?-{2,}:?$`)
)

// ExtractSeries finds "Label: $123.45", "Label: 123" and "Label - 1,234"
// pairs. Labels are de-duplicated case-insensitively, first one wins.
func ExtractSeries(text string) []Point {
	var points []Point
	seen := make(map[string]struct{})

	for _, line := range strings.Split(text, "\n") {
		line = CleanText(line)
		for _, m := range pairRe.FindAllStringSubmatch(line, -1) {
			label := seriesLabel(m[1])
			if label == "" {
				continue
			}
			value, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
			if err != nil {
				continue
			}
			key := strings.ToLower(label)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			points = append(points, Point{Label: label, Value: value})
		}
	}
	return points
}

// seriesLabel keeps the text after the last delimiter (punctuation, "and",
// "or"), at most MaxLabelWords words.
func seriesLabel(raw string) string {
	parts := labelCutRe.Split(raw, -1)
	words := strings.Fields(parts[len(parts)-1])
	if len(words) > MaxLabelWords {
		words = words[len(words)-MaxLabelWords:]
	}
	return strings.Join(words, " ")
}

// ExtractTable splits pipe-delimited rows (first row is the header) or
// "Item: details" lines into a table. It reports false when fewer than two
// usable rows are found.
func ExtractTable(text string) (Table, bool) {
	var piped, colon [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "|") {
			if cells := pipeCells(line); len(cells) > 0 {
				piped = append(piped, cells)
			}
			continue
		}
		line = CleanText(line)
		if k, v, ok := strings.Cut(line, ":"); ok {
			k, v = strings.TrimSpace(k), strings.TrimSpace(v)
			if k != "" && v != "" {
				colon = append(colon, []string{k, v})
			}
		}
	}

	switch {
	case len(piped) >= 2:
		header := piped[0]
		rows := make([][]string, 0, len(piped)-1)
		for _, r := range piped[1:] {
			rows = append(rows, fit(r, len(header)))
		}
		return Table{Headers: header, Rows: rows}, true
	case len(colon) >= 2:
		return Table{Headers: []string{"Item", "Details"}, Rows: colon}, true
	}
	return Table{}, false
}

// pipeCells returns nil for markdown separator rows.
func pipeCells(line string) []string {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	raw := strings.Split(line, "|")
	cells := make([]string, 0, len(raw))
	separator := true
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if !separatorRe.MatchString(c) {
			separator = false
		}
		cells = append(cells, CleanText(c))
	}
	if separator {
		return nil
	}
	return cells
}

func fit(row []string, width int) []string {
	if len(row) >= width {
		return row[:width]
	}
	out := make([]string, width)
	copy(out, row)
	return out
}
