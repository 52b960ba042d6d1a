// Command analysis measures how a scalable filter behaves as it grows. For
// every error rate it inserts an increasing number of items into a filter
// that starts at the minimum capacity, then reports the chain length,
// memory and the observed false positive rate next to the estimate, and
// next to the estimate for one plain bloom filter of the same total size.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jcalabro/growbloom"
)

func main() {
	var (
		rates   = flag.String("rates", "0.1,0.01,0.001", "comma separated error rates")
		maxN    = flag.Int("n", 1_000_000, "largest number of inserted items")
		queries = flag.Int("queries", 200_000, "absent items tested per row")
	)
	flag.Parse()

	errorRates, err := parseRates(*rates)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "rate\titems\tgens\tcapacity\tmem KiB\tobserved fp\testimated fp\tplain fp\tfp/rate\t")
	for _, p := range errorRates {
		for _, row := range sweep(p, *maxN, *queries) {
			fmt.Fprintf(w, "%g\t%d\t%d\t%d\t%d\t%.5f\t%.5f\t%.5f\t%.2f\t\n",
				p, row.items, row.generations, row.capacity, row.memUsage/1024,
				row.observed, row.estimated, row.plain, row.observed/p)
		}
	}
	w.Flush()
}

type result struct {
	items       int
	generations int
	capacity    uint64
	memUsage    uint64
	observed    float64
	estimated   float64
	plain       float64
}

// sweep fills one filter step by step, doubling the item count between
// rows, and measures it after every step.
func sweep(errorRate float64, maxN, queries int) []result {
	f := growbloom.New(growbloom.MinCapacity, errorRate)
	var rows []result
	inserted := 0
	for n := growbloom.MinCapacity; n <= maxN; n *= 2 {
		for ; inserted < n; inserted++ {
			f.AddString("member-" + strconv.Itoa(inserted))
		}
		rows = append(rows, result{
			items:       n,
			generations: f.Len(),
			capacity:    f.Capacity(),
			memUsage:    f.MemUsage(),
			observed:    observedFalsePositives(f, queries),
			estimated:   f.EstimatedFalsePositiveRate(),
			plain:       plainEstimate(f),
		})
	}
	return rows
}

// plainEstimate is the false positive rate of a single bloom filter with as
// many bits as the whole chain, holding the same entries.
func plainEstimate(f *growbloom.Filter) float64 {
	var bits uint64
	for _, g := range f.Generations() {
		bits += g.Bits()
	}
	return growbloom.EstimateFalsePositiveRate(bits, f.Newest().K(), f.TotalEntries())
}

func observedFalsePositives(f *growbloom.Filter, queries int) float64 {
	hits := 0
	for i := range queries {
		if f.TestString("absent-" + strconv.Itoa(i)) {
			hits++
		}
	}
	return float64(hits) / float64(queries)
}

func parseRates(s string) ([]float64, error) {
	var rates []float64
	for _, field := range strings.Split(s, ",") {
		p, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil || p <= 0 || p >= 1 {
			return nil, fmt.Errorf("invalid error rate %q", field)
		}
		rates = append(rates, p)
	}
	return rates, nil
}
