package report

import (
	"bytes"
	"encoding/json"
	"path/filepath"

	"github.com/banshee-data/masi-agreement/internal/experiment"
	"github.com/banshee-data/masi-agreement/internal/fsutil"
	"github.com/banshee-data/masi-agreement/internal/irr"
	"github.com/banshee-data/masi-agreement/internal/logging"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Output file names written by Writer.
const (
	SummaryFile   = "summary.json"
	AlphaPlotFile = "alpha.png"
	KappaPlotFile = "kappa.png"
	ChartFile     = "null.html"
)

// CoefficientReport combines an observed estimate with its permutation
// significance and null summary.
type CoefficientReport struct {
	irr.Estimate
	Permutation Significance `json:"permutation"`
	Null        NullSummary  `json:"null"`
}

// Summary is the machine-readable outcome of one experiment run.
type Summary struct {
	RunID     string                    `json:"run_id,omitempty"`
	Input     string                    `json:"input,omitempty"`
	Labels    []string                  `json:"labels"`
	Weights   [][]float64               `json:"weights"`
	Alpha     CoefficientReport         `json:"alpha"`
	Kappa     CoefficientReport         `json:"kappa"`
	Trials    int                       `json:"trials"`
	Completed int                       `json:"completed"`
	Partial   bool                      `json:"partial"`
	Seed      uint64                    `json:"seed"`
	ElapsedMS int64                     `json:"elapsed_ms"`
	Failures  []experiment.TrialFailure `json:"failures,omitempty"`
}

// Summarize builds the Summary of res.
func Summarize(res *experiment.Result) Summary {
	s := Summary{
		Alpha: CoefficientReport{
			Estimate:    res.Alpha,
			Permutation: PValue(res.Alpha.Value, res.AlphaNull),
			Null:        Summarise(res.AlphaNull),
		},
		Kappa: CoefficientReport{
			Estimate:    res.Kappa,
			Permutation: PValue(res.Kappa.Value, res.KappaNull),
			Null:        Summarise(res.KappaNull),
		},
		Trials:    res.Trials,
		Completed: res.Completed,
		Partial:   res.Partial,
		Seed:      res.Seed,
		ElapsedMS: res.Elapsed.Milliseconds(),
		Failures:  res.Failures,
	}
	if m := res.Matrix; m != nil {
		s.Labels = m.Labels
		s.Weights = make([][]float64, m.Len())
		for i := range s.Weights {
			row := make([]float64, m.Len())
			for j := range row {
				row[j] = m.At(i, j)
			}
			s.Weights[i] = row
		}
	}
	return s
}

// Writer writes the report files of a run into Dir.
type Writer struct {
	FS     fsutil.FileSystem
	Dir    string
	Bins   int
	Logger *zap.SugaredLogger
}

// NewWriter returns a Writer on the real filesystem.
func NewWriter(dir string, logger *zap.SugaredLogger) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir, Bins: DefaultBins, Logger: logging.OrNop(logger)}
}

// Write renders the summary, both histograms and the interactive chart.
// Plots are skipped when no null samples were computed. It returns the
// paths written.
func (w *Writer) Write(s Summary, res *experiment.Result) ([]string, error) {
	log := logging.OrNop(w.Logger)
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create report directory %s", w.Dir)
	}

	var written []string
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal summary")
	}
	path, err := w.write(SummaryFile, append(data, '\n'))
	if err != nil {
		return nil, err
	}
	written = append(written, path)

	alpha, kappa := res.AlphaSamples(), res.KappaSamples()
	if len(alpha) == 0 && len(kappa) == 0 {
		log.Infow("no null samples; skipping plots", "dir", w.Dir)
		return written, nil
	}

	for _, p := range []struct {
		file, title string
		nulls       []float64
		observed    float64
	}{
		{AlphaPlotFile, "Krippendorff's alpha (MASI) null distribution", alpha, res.Alpha.Value},
		{KappaPlotFile, "Fleiss' kappa (MASI) null distribution", kappa, res.Kappa.Value},
	} {
		if len(p.nulls) == 0 {
			continue
		}
		var buf bytes.Buffer
		if err := HistogramPNG(&buf, p.title, p.nulls, p.observed, w.Bins); err != nil {
			return written, errors.Wrapf(err, "plot %s", p.file)
		}
		path, err := w.write(p.file, buf.Bytes())
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	var buf bytes.Buffer
	err = HistogramHTML(&buf, []Series{
		{Name: "Krippendorff's alpha", Nulls: alpha, Observed: res.Alpha.Value},
		{Name: "Fleiss' kappa", Nulls: kappa, Observed: res.Kappa.Value},
	}, w.Bins)
	if err != nil {
		return written, errors.Wrap(err, "render chart page")
	}
	path, err = w.write(ChartFile, buf.Bytes())
	if err != nil {
		return written, err
	}
	written = append(written, path)

	log.Infow("report written", "dir", w.Dir, "files", len(written))
	return written, nil
}

func (w *Writer) write(name string, data []byte) (string, error) {
	path := filepath.Join(w.Dir, name)
	f, err := w.FS.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", path)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "write %s", path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "close %s", path)
	}
	return path, nil
}
