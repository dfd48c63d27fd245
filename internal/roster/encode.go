package roster

import (
	"math"
	"strconv"
)

var genderCodes = map[string]float64{
	"Perempuan": 0,
	"Lelaki":    1,
}

// gradeCodes maps SPM letter grades to their ordinal rank, best first.
var gradeCodes = map[string]float64{
	"A+": 1, "A": 2, "A-": 3, "B+": 4, "B": 5,
	"C+": 6, "C": 7, "D": 8, "E": 9, "G": 10,
}

// EncodeGender maps "Lelaki" to 1 and "Perempuan" to 0. Any other value is
// missing (NaN).
func EncodeGender(v string) float64 {
	if code, ok := genderCodes[v]; ok {
		return code
	}
	return math.NaN()
}

// EncodeGrade maps a letter grade to its ordinal, A+ = 1 through G = 10.
// Unrecognized grades are missing (NaN).
func EncodeGrade(v string) float64 {
	if code, ok := gradeCodes[v]; ok {
		return code
	}
	return math.NaN()
}

// EncodeOptions names the categorical columns to encode. An empty name, or a
// name that is not in the roster, skips that encoding.
type EncodeOptions struct {
	GenderColumn string
	GradeColumn  string
}

// Encode returns a copy of the roster with the gender and grade columns
// replaced by their numeric codes. Missing codes become empty cells.
func (r *Roster) Encode(opts EncodeOptions) (*Roster, error) {
	out := r
	encoders := []struct {
		column string
		fn     func(string) float64
	}{
		{opts.GenderColumn, EncodeGender},
		{opts.GradeColumn, EncodeGrade},
	}

	for _, enc := range encoders {
		if enc.column == "" || !out.HasColumn(enc.column) {
			continue
		}
		raw, err := out.Column(enc.column)
		if err != nil {
			return nil, err
		}
		encoded := make([]string, len(raw))
		for i, v := range raw {
			encoded[i] = formatCode(enc.fn(v))
		}
		out, err = out.WithColumn(enc.column, encoded)
		if err != nil {
			return nil, err
		}
	}

	return out, nil
}

func formatCode(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
