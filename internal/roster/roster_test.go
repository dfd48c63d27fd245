package roster

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"simpleml/internal/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const malayCSV = `NAMA,JANTINA,GREDSPM,KEHADIRAN,UJIAN1,ASRAMA
Aisyah,Perempuan,A+,95.5,88,true
Badrul,Lelaki,G,61,32.25,false
Chong,Lain,Z,78,,true
`

func loadString(t *testing.T, s string) *Roster {
	t.Helper()
	r, err := Load(strings.NewReader(s))
	require.NoError(t, err)
	return r
}

func TestEncodeGender(t *testing.T) {
	assert.Equal(t, 1.0, EncodeGender("Lelaki"))
	assert.Equal(t, 0.0, EncodeGender("Perempuan"))
	assert.True(t, math.IsNaN(EncodeGender("Male")))
	assert.True(t, math.IsNaN(EncodeGender("")))
	assert.True(t, math.IsNaN(EncodeGender("lelaki")))
}

func TestEncodeGrade(t *testing.T) {
	tests := map[string]float64{
		"A+": 1, "A": 2, "A-": 3, "B+": 4, "B": 5,
		"C+": 6, "C": 7, "D": 8, "E": 9, "G": 10,
	}
	for grade, want := range tests {
		assert.Equal(t, want, EncodeGrade(grade), grade)
	}
	assert.True(t, math.IsNaN(EncodeGrade("F")))
	assert.True(t, math.IsNaN(EncodeGrade("a+")))
}

func TestLoad(t *testing.T) {
	r := loadString(t, malayCSV)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"NAMA", "JANTINA", "GREDSPM", "KEHADIRAN", "UJIAN1", "ASRAMA"}, r.Columns())
	assert.True(t, r.HasColumn("NAMA"))
	assert.False(t, r.HasColumn("Name"))
}

func TestLoad_StripsBOM(t *testing.T) {
	r := loadString(t, "\ufeffNAMA,UJIAN1\nAisyah,80\n")
	assert.Equal(t, []string{"NAMA", "UJIAN1"}, r.Columns())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = Load(strings.NewReader("NAMA,UJIAN1\n"))
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = Load(strings.NewReader("NAMA,UJIAN1\n\n"))
	assert.ErrorIs(t, err, ErrNoRows)

	_, err = Load(strings.NewReader("NAMA,UJIAN1\nAisyah,80,extra\n"))
	assert.ErrorIs(t, err, ErrMalformedCSV)
}

func TestLoad_HeaderOnlyIsNotMalformed(t *testing.T) {
	_, err := Load(strings.NewReader("NAMA,UJIAN1\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedCSV)
	assert.Equal(t, ErrNoRows.Error(), err.Error())
}

func TestLoad_RejectsAmbiguousHeader(t *testing.T) {
	_, err := Load(strings.NewReader("NAMA,Score,Score\nAisyah,80,81\n"))
	assert.ErrorIs(t, err, ErrMalformedCSV)
	assert.Contains(t, err.Error(), `duplicate column "Score"`)

	_, err = Load(strings.NewReader("NAMA,,UJIAN1\nAisyah,x,80\n"))
	assert.ErrorIs(t, err, ErrMalformedCSV)
}

func TestEncode(t *testing.T) {
	r := loadString(t, malayCSV)
	encoded, err := r.Encode(EncodeOptions{GenderColumn: "JANTINA", GradeColumn: "GREDSPM"})
	require.NoError(t, err)

	gender, err := encoded.Column("JANTINA")
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", ""}, gender)

	grade, err := encoded.Column("GREDSPM")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "10", ""}, grade)

	// the original roster is untouched
	raw, err := r.Column("JANTINA")
	require.NoError(t, err)
	assert.Equal(t, []string{"Perempuan", "Lelaki", "Lain"}, raw)
}

func TestEncode_MissingColumnsAreSkipped(t *testing.T) {
	r := loadString(t, "Name,Gender,Score\nAmy,Female,70\n")
	encoded, err := r.Encode(EncodeOptions{GenderColumn: "JANTINA", GradeColumn: "GREDSPM"})
	require.NoError(t, err)
	assert.Equal(t, r.Records(), encoded.Records())
}

func TestFeatures(t *testing.T) {
	r := loadString(t, malayCSV)
	encoded, err := r.Encode(EncodeOptions{GenderColumn: "JANTINA", GradeColumn: "GREDSPM"})
	require.NoError(t, err)

	fs, err := encoded.Features(common.DefaultDropColumns)
	require.NoError(t, err)

	assert.Equal(t, []string{"JANTINA", "GREDSPM", "KEHADIRAN", "UJIAN1", "ASRAMA"}, fs.Names)
	assert.Empty(t, fs.Dropped)

	rows, cols := fs.Matrix.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 5, cols)

	assert.Equal(t, []float64{0, 1, 95.5, 88, 1}, fs.Matrix.RawRowView(0))
	assert.Equal(t, []float64{1, 10, 61, 32.25, 0}, fs.Matrix.RawRowView(1))
	assert.True(t, math.IsNaN(fs.Matrix.At(2, 0)))
	assert.True(t, math.IsNaN(fs.Matrix.At(2, 1)))
	assert.True(t, math.IsNaN(fs.Matrix.At(2, 3)))
}

func TestFeatures_DropsTextColumns(t *testing.T) {
	r := loadString(t, "Name,Class,Score,At_Risk\nAmy,5A,70,1\nBen,5B,40,0\n")
	fs, err := r.Features(common.DefaultDropColumns)
	require.NoError(t, err)
	assert.Equal(t, []string{"Score"}, fs.Names)
	assert.Equal(t, []string{"Class"}, fs.Dropped)
}

func TestFeatures_NoNumericColumns(t *testing.T) {
	r := loadString(t, "NAMA,Kelas\nAisyah,5A\n")
	_, err := r.Features(common.DefaultDropColumns)
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestWithLabels(t *testing.T) {
	r := loadString(t, malayCSV)
	labels := []string{common.LabelSafe, common.LabelAtRisk, common.LabelSafe}

	out, err := r.WithLabels(labels)
	require.NoError(t, err)

	assert.Len(t, out.Columns(), len(r.Columns())+1)
	assert.Equal(t, common.RiskColumn, out.Columns()[len(out.Columns())-1])

	got, err := out.Column(common.RiskColumn)
	require.NoError(t, err)
	for _, v := range got {
		assert.Contains(t, []string{common.LabelAtRisk, common.LabelSafe}, v)
	}

	_, err = r.WithLabels(labels[:2])
	assert.ErrorIs(t, err, ErrLabelCount)
}

func TestWithLabels_ReplacesExistingRiskColumn(t *testing.T) {
	r := loadString(t, "NAMA,UJIAN1,Risk_Level\nAisyah,80,old\n")
	out, err := r.WithLabels([]string{common.LabelSafe})
	require.NoError(t, err)
	assert.Equal(t, r.Columns(), out.Columns())

	got, err := out.Column(common.RiskColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{common.LabelSafe}, got)
}

func TestDisplay(t *testing.T) {
	r := loadString(t, malayCSV)
	out, err := r.WithLabels([]string{common.LabelSafe, common.LabelAtRisk, common.LabelSafe})
	require.NoError(t, err)

	table := out.Display("NAMA")
	require.Len(t, table, 4)
	assert.Equal(t, []string{"NAMA", "Risk_Level"}, table[0])
	assert.Equal(t, []string{"Badrul", "At Risk"}, table[2])

	noName := loadString(t, "Score\n70\n")
	labelled, err := noName.WithLabels([]string{common.LabelSafe})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Score", "Risk_Level"}, {"70", "Safe"}}, labelled.Display("NAMA"))
}

func TestPreview(t *testing.T) {
	r := loadString(t, malayCSV)
	assert.Len(t, r.Preview(2), 3)
	assert.Len(t, r.Preview(50), 4)
}

func TestExportRoundTrip(t *testing.T) {
	input := "NAMA,JANTINA,GREDSPM,KEHADIRAN,Catatan\n" +
		"Aisyah,Perempuan,A+,95.50,\"Ketua, kelas\"\n" +
		"Badrul,Lelaki,G,061,\n"
	r := loadString(t, input)
	out, err := r.WithLabels([]string{common.LabelSafe, common.LabelAtRisk})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, out.WriteCSV(&buf))

	reloaded, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, out.Records(), reloaded.Records())

	labels, err := reloaded.Column(common.RiskColumn)
	require.NoError(t, err)
	assert.Equal(t, []string{"Safe", "At Risk"}, labels)

	attendance, err := reloaded.Column("KEHADIRAN")
	require.NoError(t, err)
	assert.Equal(t, []string{"95.50", "061"}, attendance)
}
