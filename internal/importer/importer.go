// Package importer discovers Bruker experiment folders under a root
// directory and loads them into a Dataset.
package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/nmrbrew/internal/config"
	"github.com/banshee-data/nmrbrew/internal/fsutil"
	"github.com/banshee-data/nmrbrew/internal/monitoring"
	"github.com/banshee-data/nmrbrew/internal/spectra"
)

// ErrNoData is returned when no folder under the root yields a spectrum.
var ErrNoData = errors.New("no valid spectra found")

// Sample id sources.
const (
	SampleIDScan       = "Scan number"
	SampleIDSequential = "Sequential"
	SampleIDExperiment = "Experiment (regexp)"
	SampleIDPath       = "Path (regexp)"
)

// Class sources.
const (
	ClassNone       = "None"
	ClassExperiment = "Experiment (regexp)"
	ClassPath       = "Path (regexp)"
)

// dummyScans are placeholder experiment numbers written by the instrument.
var dummyScans = map[string]bool{"99999": true, "9999": true}

var logf = monitoring.Prefixed("[importer] ")

// Options configure the import stage.
type Options struct {
	config.Common
	Filename            string `json:"filename"`
	RemoveDigitalFilter bool   `json:"remove_digital_filter"`
	ReverseSpectra      bool   `json:"reverse_spectra"`
	ZeroFill            bool   `json:"zero_fill"`
	ZeroFillTo          int    `json:"zero_fill_to"`
	PathFilterRegexp    string `json:"path_filter_regexp"`
	SampleIDFrom        string `json:"sample_id_from"`
	SampleIDRegexp      string `json:"sample_id_regexp"`
	ClassFrom           string `json:"class_from"`
	ClassRegexp         string `json:"class_regexp"`
}

// DefaultOptions zero fills to 32768 points and labels samples by scan
// number.
func DefaultOptions() *Options {
	return &Options{
		Common:              config.DefaultCommon(),
		RemoveDigitalFilter: true,
		ReverseSpectra:      true,
		ZeroFill:            true,
		ZeroFillTo:          32768,
		SampleIDFrom:        SampleIDScan,
		ClassFrom:           ClassNone,
	}
}

// Validate checks the enumerations and that every regexp compiles.
func (o *Options) Validate() error {
	switch o.SampleIDFrom {
	case SampleIDScan, SampleIDSequential, SampleIDExperiment, SampleIDPath:
	default:
		return fmt.Errorf("unknown sample_id_from %q", o.SampleIDFrom)
	}
	switch o.ClassFrom {
	case ClassNone, ClassExperiment, ClassPath:
	default:
		return fmt.Errorf("unknown class_from %q", o.ClassFrom)
	}
	if o.ZeroFill && o.ZeroFillTo < 1 {
		return fmt.Errorf("zero_fill_to must be positive, got %d", o.ZeroFillTo)
	}
	for name, expr := range map[string]string{
		"path_filter_regexp": o.PathFilterRegexp,
		"sample_id_regexp":   o.SampleIDRegexp,
		"class_regexp":       o.ClassRegexp,
	} {
		if _, err := compile(expr); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func compile(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	return regexp.Compile(expr)
}

// Candidate reports the outcome for one discovered folder.
type Candidate struct {
	Path   string `json:"path"`
	Loaded bool   `json:"loaded"`
	Reason string `json:"reason,omitempty"`
}

// Discover walks root for folders holding a fid file. Dummy scans and
// folders rejected by filter are reported as skipped candidates.
func Discover(fsys fsutil.FileSystem, root string, filter *regexp.Regexp) (folders []string, skipped []Candidate, err error) {
	err = fsys.WalkDirs(root, func(dir string) error {
		if !fsys.Exists(filepath.Join(dir, "fid")) {
			return nil
		}
		switch {
		case dummyScans[filepath.Base(dir)]:
			skipped = append(skipped, Candidate{Path: dir, Reason: "dummy scan"})
		case filter != nil && !filter.MatchString(dir):
			skipped = append(skipped, Candidate{Path: dir, Reason: "excluded by path filter"})
		default:
			folders = append(folders, dir)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return folders, skipped, nil
}

// pick returns the last participating group of the first match of re in s,
// or the whole match when re has no participating groups.
func pick(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatchIndex(s)
	if m == nil {
		return "", false
	}
	for g := len(m)/2 - 1; g > 0; g-- {
		if m[2*g] >= 0 {
			return s[m[2*g]:m[2*g+1]], true
		}
	}
	return s[m[0]:m[1]], true
}

// derive applies a regexp to source, falling back to fallback when the
// regexp is unset or does not match.
func derive(re *regexp.Regexp, source, unset, fallback string) string {
	if re == nil {
		return unset
	}
	if v, ok := pick(re, source); ok {
		return v
	}
	return fallback
}

type loaded struct {
	acqus    Acqus
	spectrum []complex128
}

func loadFolder(fsys fsutil.FileSystem, dir string, o DecodeOptions) (*loaded, error) {
	head, err := fsys.ReadFile(filepath.Join(dir, "acqus"))
	if err != nil {
		return nil, fmt.Errorf("reading acqus: %w", err)
	}
	a, err := ParseAcqus(head)
	if err != nil {
		return nil, err
	}
	raw, err := fsys.ReadFile(filepath.Join(dir, "fid"))
	if err != nil {
		return nil, fmt.Errorf("reading fid: %w", err)
	}
	fid, err := ReadFID(raw, a)
	if err != nil {
		return nil, err
	}
	return &loaded{acqus: a, spectrum: Transform(fid, a, o)}, nil
}

// Import loads every spectrum under o.Filename. It fails with ErrNoData
// when nothing loads; otherwise the candidate report is returned as the
// "candidates" artifact.
func Import(ctx context.Context, fsys fsutil.FileSystem, o Options, progress spectra.ProgressFunc) (*spectra.Result, error) {
	if o.Filename == "" {
		return nil, fmt.Errorf("%w: no folder selected", ErrNoData)
	}
	filter, _ := compile(o.PathFilterRegexp)
	idRE, _ := compile(o.SampleIDRegexp)
	classRE, _ := compile(o.ClassRegexp)

	folders, report, err := Discover(fsys, o.Filename, filter)
	if err != nil {
		return nil, err
	}
	dec := DecodeOptions{
		RemoveDigitalFilter: o.RemoveDigitalFilter,
		ZeroFill:            o.ZeroFill,
		ZeroFillTo:          o.ZeroFillTo,
		Reverse:             o.ReverseSpectra,
	}

	var (
		transforms      [][]complex128
		labels, classes []string
		last            *loaded
	)
	for n, dir := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := loadFolder(fsys, dir, dec)
		switch {
		case err != nil:
			report = append(report, Candidate{Path: dir, Reason: err.Error()})
			logf("skipping %s: %v", dir, err)
		case len(transforms) > 0 && len(l.spectrum) != len(transforms[0]):
			reason := fmt.Sprintf("transform size %d differs from %d", len(l.spectrum), len(transforms[0]))
			report = append(report, Candidate{Path: dir, Reason: reason})
			logf("skipping %s: %s", dir, reason)
		default:
			exp := l.acqus["EXP"]
			var label string
			switch o.SampleIDFrom {
			case SampleIDSequential:
				label = fmt.Sprint(n + 1)
			case SampleIDExperiment:
				label = derive(idRE, exp, exp, exp)
			case SampleIDPath:
				label = derive(idRE, dir, filepath.Base(dir), dir)
			default:
				label = filepath.Base(dir)
			}
			var class string
			switch o.ClassFrom {
			case ClassExperiment:
				class = derive(classRE, exp, exp, exp)
			case ClassPath:
				class = derive(classRE, dir, filepath.Base(dir), dir)
			}
			transforms = append(transforms, l.spectrum)
			labels = append(labels, label)
			classes = append(classes, class)
			last = l
			report = append(report, Candidate{Path: dir, Loaded: true})
		}
		if progress != nil {
			progress(float64(n+1) / float64(len(folders)))
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w in %s (%d candidates)", ErrNoData, o.Filename, len(report))
	}

	ax, err := AxisFrom(last.acqus)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	size := len(transforms[0])
	re := mat.NewDense(len(transforms), size, nil)
	im := mat.NewDense(len(transforms), size, nil)
	for i, s := range transforms {
		rr, ir := re.RawRowView(i), im.RawRowView(i)
		for j, v := range s {
			rr[j], ir[j] = real(v), imag(v)
		}
	}
	ds := &spectra.Dataset{
		PPM:      ax.PPM(size),
		Data:     re,
		Imag:     im,
		Labels:   labels,
		Classes:  classes,
		Outliers: make([]float64, len(transforms)),
		Metadata: map[string]string{
			"experiment_name": fmt.Sprintf("%s (%s)", last.acqus["EXP"], o.Filename),
			"source_folder":   o.Filename,
		},
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	if progress != nil {
		progress(1)
	}
	return spectra.NewResult(ds).With("candidates", report), nil
}
