package metrics

import (
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// RenderLatencyHistogram writes a histogram of samples (in milliseconds) to
// path. The output format is chosen from the file extension: .svg, .pdf,
// and .png are all supported by gonum/plot's Save.
func RenderLatencyHistogram(samples []time.Duration, bins int, path string) error {
	values := make(plotter.Values, len(samples))
	for i, d := range samples {
		values[i] = float64(d) / float64(time.Millisecond)
	}

	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Publish acknowledgement latency"
	p.X.Label.Text = "milliseconds"
	p.Y.Label.Text = "samples"

	hist, err := plotter.NewHist(values, bins)
	if err != nil {
		return err
	}
	p.Add(hist)

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
