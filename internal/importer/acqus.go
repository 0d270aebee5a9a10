package importer

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Acqus holds the acquisition parameters read from a JCAMP-DX style acqus
// file. Only scalar "##$KEY= value" entries are kept; string values lose
// their angle brackets.
type Acqus map[string]string

// ParseAcqus reads acqus parameters. Array-valued entries, whose values
// continue on following lines, are skipped.
func ParseAcqus(data []byte) (Acqus, error) {
	out := Acqus{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "##$") {
			continue
		}
		key, val, ok := strings.Cut(line[3:], "=")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if strings.HasPrefix(val, "(") {
			continue
		}
		val = strings.TrimSuffix(strings.TrimPrefix(val, "<"), ">")
		out[strings.TrimSpace(key)] = val
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read acqus: %w", err)
	}
	return out, nil
}

// Float returns a numeric parameter.
func (a Acqus) Float(key string) (float64, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("acqus: missing %s", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("acqus: %s: %w", key, err)
	}
	return f, nil
}

// IntOr returns an integer parameter, or def when absent or malformed.
func (a Acqus) IntOr(key string, def int) int {
	f, err := a.Float(key)
	if err != nil {
		return def
	}
	return int(f)
}

// Axis holds the parameters that define the ppm axis.
type Axis struct {
	SW  float64 // spectral width, ppm
	O1  float64 // carrier offset, Hz
	BF1 float64 // base frequency, MHz
}

// AxisFrom extracts SW, O1 and BF1.
func AxisFrom(a Acqus) (Axis, error) {
	var ax Axis
	var err error
	if ax.SW, err = a.Float("SW"); err != nil {
		return ax, err
	}
	if ax.O1, err = a.Float("O1"); err != nil {
		return ax, err
	}
	if ax.BF1, err = a.Float("BF1"); err != nil {
		return ax, err
	}
	if ax.SW <= 0 || ax.BF1 <= 0 {
		return ax, fmt.Errorf("acqus: SW and BF1 must be positive, got %v and %v", ax.SW, ax.BF1)
	}
	return ax, nil
}

// PPM returns the descending chemical shift axis for a transform of size
// points: offset = SW/2 - O1/BF1, running from SW-offset down towards
// -offset in steps of SW/size.
func (ax Axis) PPM(size int) []float64 {
	offset := ax.SW/2 - ax.O1/ax.BF1
	start := ax.SW - offset
	step := ax.SW / float64(size)
	out := make([]float64, size)
	for i := range out {
		out[i] = start - float64(i)*step
	}
	return out
}
