package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"simpleml/internal/common"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var grades = []string{"A+", "A", "A-", "B+", "B", "C+", "C", "D", "E", "G"}

func main() {
	var (
		output   = flag.String("output", "sample_roster.csv", "CSV file to write")
		students = flag.Int("students", 30, "Number of students to generate")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		blanks   = flag.Float64("blanks", 0.05, "Share of test scores left empty")
	)
	flag.Parse()

	fmt.Printf("Generating sample roster...\n")
	fmt.Printf("  Students: %d\n", *students)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *output)

	if *students <= 0 {
		log.Fatalf("students must be positive, got %d", *students)
	}

	df := generateRoster(rand.New(rand.NewSource(*seed)), *students, *blanks)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	defer f.Close()

	if err := df.WriteCSV(f); err != nil {
		log.Fatalf("Failed to write roster: %v", err)
	}

	fmt.Printf("✓ Wrote %d students to %s\n", df.Nrow(), *output)
}

func generateRoster(rng *rand.Rand, n int, blanks float64) dataframe.DataFrame {
	names := make([]string, n)
	gender := make([]string, n)
	grade := make([]string, n)
	attendance := make([]string, n)
	test := make([]string, n)
	hostel := make([]string, n)

	for i := 0; i < n; i++ {
		names[i] = fmt.Sprintf("Pelajar %03d", i+1)

		if rng.Float64() < 0.5 {
			gender[i] = "Lelaki"
		} else {
			gender[i] = "Perempuan"
		}

		// Weaker grades pull attendance and test scores down
		g := rng.Intn(len(grades))
		grade[i] = grades[g]
		weakness := float64(g) / float64(len(grades)-1)

		att := 95 - 30*weakness + rng.NormFloat64()*5
		attendance[i] = formatScore(clamp(att, 40, 100))

		if rng.Float64() < blanks {
			test[i] = ""
		} else {
			score := 85 - 45*weakness + rng.NormFloat64()*8
			test[i] = formatScore(clamp(score, 0, 100))
		}

		hostel[i] = strconv.FormatBool(rng.Float64() < 0.4)
	}

	return dataframe.New(
		series.New(names, series.String, common.DefaultNameColumn),
		series.New(gender, series.String, common.DefaultGenderColumn),
		series.New(grade, series.String, common.DefaultGradeColumn),
		series.New(attendance, series.String, "KEHADIRAN"),
		series.New(test, series.String, "UJIAN1"),
		series.New(hostel, series.String, "ASRAMA"),
	)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
