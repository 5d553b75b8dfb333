package app

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roman-kulish/spacelabel/internal/spectrum"
)

// textView prints a summary of every window it is asked to draw.
type textView struct {
	out          io.Writer
	measurements []string
}

func newTextView(out io.Writer, measurements []string) *textView {
	return &textView{out: out, measurements: measurements}
}

func (v *textView) SelectMeasurements([]string) []string {
	return v.measurements
}

func (v *textView) Draw(w *spectrum.Window) error {
	fUnit := w.Units[spectrum.UnitFrequency]
	if w.Empty() {
		_, err := fmt.Fprintf(v.out, "window %s .. %s: no samples\n", w.Start, w.End)
		return err
	}

	fmt.Fprintf(v.out, "window %s .. %s: %s samples x %s frequencies (%s - %s %s)\n",
		w.Start, w.End,
		humanize.Comma(int64(len(w.Time))),
		humanize.Comma(int64(len(w.Frequency))),
		humanize.FormatFloat("#,###.##", w.Frequency[0]),
		humanize.FormatFloat("#,###.##", w.Frequency[len(w.Frequency)-1]),
		fUnit,
	)

	names := make([]string, 0, len(w.Measurements))
	for name := range w.Measurements {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		values, missing := finiteValues(w.Measurements[name].RawMatrix().Data)
		if len(values) == 0 {
			fmt.Fprintf(v.out, "  %s [%s]: no data\n", name, w.Units[name])
			continue
		}
		fmt.Fprintf(v.out, "  %s [%s]: min %.4g, max %.4g, mean %.4g, %s missing\n",
			name, w.Units[name],
			floats.Min(values), floats.Max(values), stat.Mean(values, nil),
			humanize.Comma(int64(missing)),
		)
	}

	for _, f := range w.Features {
		t0, t1 := f.TimeExtent()
		f0, f1 := f.FrequencyExtent()
		fmt.Fprintf(v.out, "  feature %d %q: %s .. %s, %g - %g %s\n", f.ID(), f.Name(), t0, t1, f0, f1, fUnit)
	}
	return nil
}

// finiteValues drops NaN and infinite cells, returning how many were
// dropped.
func finiteValues(data []float64) ([]float64, int) {
	out := make([]float64, 0, len(data))
	for _, x := range data {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out, len(data) - len(out)
}
