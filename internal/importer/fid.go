package importer

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// DecodeOptions control the FID to spectrum transform.
type DecodeOptions struct {
	RemoveDigitalFilter bool
	ZeroFill            bool
	ZeroFillTo          int
	Reverse             bool
}

// ReadFID decodes interleaved real/imaginary samples. Byte order follows
// BYTORDA (1 is big endian) and the sample type follows DTYPA (2 is
// float64, otherwise int32). TD, when present, caps the number of values
// read.
func ReadFID(raw []byte, a Acqus) ([]complex128, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if a.IntOr("BYTORDA", 0) == 1 {
		order = binary.BigEndian
	}
	width := 4
	if a.IntOr("DTYPA", 0) == 2 {
		width = 8
	}
	values := len(raw) / width
	if td := a.IntOr("TD", 0); td > 0 && td < values {
		values = td
	}
	values -= values % 2
	if values == 0 {
		return nil, fmt.Errorf("fid holds no complete complex samples (%d bytes)", len(raw))
	}

	read := func(i int) float64 {
		b := raw[i*width : (i+1)*width]
		if width == 8 {
			return math.Float64frombits(order.Uint64(b))
		}
		return float64(int32(order.Uint32(b)))
	}
	out := make([]complex128, values/2)
	for k := range out {
		out[k] = complex(read(2*k), read(2*k+1))
	}
	return out, nil
}

// Transform turns a FID into a frequency-domain spectrum: digital filter
// removal by rotating out GRPDLY points, zero filling, Fourier transform
// with the zero frequency centred, and optional reversal.
func Transform(fid []complex128, a Acqus, o DecodeOptions) []complex128 {
	data := append([]complex128(nil), fid...)
	if o.RemoveDigitalFilter {
		if grpdly, err := a.Float("GRPDLY"); err == nil && grpdly > 0 {
			skip := min(int(math.Floor(grpdly)), len(data)-1)
			data = append(data[skip:], data[:skip]...)
			data = data[:len(data)-skip]
		}
	}
	if o.ZeroFill && o.ZeroFillTo > len(data) {
		data = append(data, make([]complex128, o.ZeroFillTo-len(data))...)
	}

	fft := fourier.NewCmplxFFT(len(data))
	spectrum := fft.Coefficients(nil, data)
	spectrum = fftShift(spectrum)
	if o.Reverse {
		for i, j := 0, len(spectrum)-1; i < j; i, j = i+1, j-1 {
			spectrum[i], spectrum[j] = spectrum[j], spectrum[i]
		}
	}
	return spectrum
}

// fftShift moves the zero-frequency term to the centre.
func fftShift(x []complex128) []complex128 {
	n := len(x)
	h := n / 2
	out := make([]complex128, n)
	copy(out, x[n-h:])
	copy(out[h:], x[:n-h])
	return out
}
