// Package trace records pin values across simulation steps and renders
// them as a timing diagram.
package trace

import (
	"io"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/fantasticism/lsim"
)

// signal lane geometry: each signal gets a band of laneHeight, with the
// logic levels mapped inside it.
const (
	laneHeight = 1.5
	levelLow   = 0.0
	levelHigh  = 1.0
	levelFloat = 0.5  // undefined renders mid-rail
	levelError = -0.2 // error renders below the low rail
)

// A Recorder samples the resolved node values of watched pins, one
// sample per call, typically once after every simulation step.
type Recorder struct {
	inst    *lsim.CircuitInstance
	labels  []string
	pins    []lsim.PinID
	samples [][]lsim.Value
}

// New returns a Recorder bound to a circuit instance.
func New(inst *lsim.CircuitInstance) *Recorder {
	return &Recorder{inst: inst}
}

// Watch adds a pin to the recording under the given label. Watching
// after sampling started would desynchronize the lanes and panics.
func (r *Recorder) Watch(label string, pin lsim.PinID) {
	if len(r.samples) > 0 {
		panic("trace: watch before the first sample")
	}
	r.labels = append(r.labels, label)
	r.pins = append(r.pins, pin)
}

// Sample appends the current resolved value of every watched pin.
func (r *Recorder) Sample() {
	row := make([]lsim.Value, len(r.pins))
	for i, p := range r.pins {
		row[i] = r.inst.NodeValue(p)
	}
	r.samples = append(r.samples, row)
}

// Len returns the number of samples taken.
func (r *Recorder) Len() int { return len(r.samples) }

// Values returns the recorded value sequence for a label, or nil.
func (r *Recorder) Values(label string) []lsim.Value {
	for i, l := range r.labels {
		if l != label {
			continue
		}
		vals := make([]lsim.Value, len(r.samples))
		for s, row := range r.samples {
			vals[s] = row[i]
		}
		return vals
	}
	return nil
}

func level(v lsim.Value) float64 {
	switch v {
	case lsim.ValueFalse:
		return levelLow
	case lsim.ValueTrue:
		return levelHigh
	case lsim.ValueError:
		return levelError
	}
	return levelFloat
}

// Plot builds a timing diagram: one lane per watched pin, newest lane
// at the bottom, values drawn as step lines over the sample index.
func (r *Recorder) Plot() (*plot.Plot, error) {
	if len(r.samples) == 0 {
		return nil, errors.New("no samples recorded")
	}
	p := plot.New()
	p.Title.Text = "trace"
	p.X.Label.Text = "step"
	p.Y.Tick.Marker = plot.ConstantTicks(r.laneTicks())

	for i, label := range r.labels {
		base := float64(len(r.labels)-1-i) * laneHeight
		xys := make(plotter.XYs, 0, 2*len(r.samples))
		for s, row := range r.samples {
			y := base + level(row[i])
			xys = append(xys, plotter.XY{X: float64(s), Y: y}, plotter.XY{X: float64(s + 1), Y: y})
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "lane %q", label)
		}
		p.Add(line)
		p.Legend.Add(label, line)
	}
	return p, nil
}

func (r *Recorder) laneTicks() []plot.Tick {
	ticks := make([]plot.Tick, len(r.labels))
	for i, label := range r.labels {
		base := float64(len(r.labels)-1-i) * laneHeight
		ticks[i] = plot.Tick{Value: base + levelFloat, Label: label}
	}
	return ticks
}

// Render writes the timing diagram to w as a PNG.
func (r *Recorder) Render(w io.Writer) error {
	p, err := r.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(16*vg.Centimeter, vg.Centimeter*vg.Length(1+laneHeight*float64(len(r.labels))), "png")
	if err != nil {
		return errors.Wrap(err, "render trace")
	}
	_, err = wt.WriteTo(w)
	return err
}

// Save writes the timing diagram to a PNG file.
func (r *Recorder) Save(path string) error {
	p, err := r.Plot()
	if err != nil {
		return err
	}
	return p.Save(16*vg.Centimeter, vg.Centimeter*vg.Length(1+laneHeight*float64(len(r.labels))), path)
}
