package roster

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// ErrNoFeatures is returned when no numeric column survives selection.
var ErrNoFeatures = errors.New("no numeric feature columns in upload")

// FeatureSet is the numeric view of a roster consumed by the model.
type FeatureSet struct {
	Names   []string
	Matrix  *mat.Dense
	Dropped []string // non-numeric columns left out
}

// Features drops the given identifier/label columns (absent ones are
// ignored) and keeps the columns whose every non-empty cell is a number or a
// boolean. Empty cells become NaN.
func (r *Roster) Features(drop []string) (*FeatureSet, error) {
	skip := make(map[string]bool, len(drop))
	for _, name := range drop {
		skip[name] = true
	}

	fs := &FeatureSet{}
	var columns [][]float64

	for _, name := range r.Columns() {
		if skip[name] {
			continue
		}
		raw, err := r.Column(name)
		if err != nil {
			return nil, err
		}
		values, ok := parseNumericColumn(raw)
		if !ok {
			fs.Dropped = append(fs.Dropped, name)
			continue
		}
		fs.Names = append(fs.Names, name)
		columns = append(columns, values)
	}

	if len(fs.Dropped) > 0 {
		log.Warn().Strs("columns", fs.Dropped).Msg("dropping non-numeric columns")
	}
	if len(columns) == 0 {
		return nil, ErrNoFeatures
	}

	rows := r.Len()
	fs.Matrix = mat.NewDense(rows, len(columns), nil)
	for j, col := range columns {
		fs.Matrix.SetCol(j, col)
	}

	return fs, nil
}

// parseNumericColumn converts a column when all non-empty cells are numbers,
// or all are booleans.
func parseNumericColumn(raw []string) ([]float64, bool) {
	if values, ok := parseColumn(raw, parseNumber); ok {
		return values, true
	}
	return parseColumn(raw, parseBool)
}

func parseColumn(raw []string, parse func(string) (float64, bool)) ([]float64, bool) {
	values := make([]float64, len(raw))
	for i, cell := range raw {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			values[i] = math.NaN()
			continue
		}
		v, ok := parse(cell)
		if !ok {
			return nil, false
		}
		values[i] = v
	}
	return values, true
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseBool(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	return 0, false
}
