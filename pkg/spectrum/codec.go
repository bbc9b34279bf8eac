package spectrum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Grid files are gzip-compressed little-endian binary:
//
//	magic "PHXG", version byte,
//	temperature (float64 K), logg (float64), metallicity (float64),
//	resolution (uint32), sample count (uint32),
//	wavelengths (n float64, micron), flux (n float64),
//	CRC-32 (IEEE) of everything after the version byte.
var (
	fileMagic = [4]byte{'P', 'H', 'X', 'G'}

	// ErrCorrupt marks a grid file that fails magic, version or checksum
	// validation. Callers should discard the file and re-fetch.
	ErrCorrupt = errors.New("spectrum: corrupt grid file")
)

const fileVersion byte = 1

// File is one decoded grid file: a spectrum tagged with the grid-point
// parameters it was computed for.
type File struct {
	Temperature float64 // K
	LogG        float64 // dex
	Metallicity float64 // dex
	Resolution  int
	Spectrum    Spectrum
}

// Encode writes f to w in the grid-file format.
func Encode(w io.Writer, f File) error {
	if f.Spectrum.Len() == 0 || len(f.Spectrum.Wavelength) != len(f.Spectrum.Flux) {
		return fmt.Errorf("spectrum: refusing to encode inconsistent spectrum (%d wavelengths, %d fluxes)",
			len(f.Spectrum.Wavelength), len(f.Spectrum.Flux))
	}

	gz := gzip.NewWriter(w)
	if _, err := gz.Write(fileMagic[:]); err != nil {
		return err
	}
	if _, err := gz.Write([]byte{fileVersion}); err != nil {
		return err
	}

	sum := crc32.NewIEEE()
	payload := io.MultiWriter(gz, sum)
	if err := writePayload(payload, f); err != nil {
		return err
	}
	if err := binary.Write(gz, binary.LittleEndian, sum.Sum32()); err != nil {
		return err
	}
	return gz.Close()
}

func writePayload(w io.Writer, f File) error {
	for _, v := range []any{
		f.Temperature, f.LogG, f.Metallicity,
		uint32(f.Resolution), uint32(f.Spectrum.Len()),
		f.Spectrum.Wavelength, f.Spectrum.Flux,
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads one grid file from r, validating magic, version and
// checksum. Validation failures are reported as (wrapped) ErrCorrupt.
func Decode(r io.Reader) (File, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer gz.Close()

	var header [5]byte
	if _, err := io.ReadFull(gz, header[:]); err != nil {
		return File{}, fmt.Errorf("%w: short header: %v", ErrCorrupt, err)
	}
	if [4]byte(header[:4]) != fileMagic {
		return File{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, header[:4])
	}
	if header[4] != fileVersion {
		return File{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, header[4])
	}

	sum := crc32.NewIEEE()
	payload := io.TeeReader(gz, sum)

	var f File
	var resolution, n uint32
	if err := readPayloadHeader(payload, &f, &resolution, &n); err != nil {
		return File{}, err
	}
	if n == 0 || n > 1<<28 {
		return File{}, fmt.Errorf("%w: implausible sample count %d", ErrCorrupt, n)
	}

	wavelength := make([]float64, n)
	flux := make([]float64, n)
	if err := binary.Read(payload, binary.LittleEndian, wavelength); err != nil {
		return File{}, fmt.Errorf("%w: truncated wavelengths: %v", ErrCorrupt, err)
	}
	if err := binary.Read(payload, binary.LittleEndian, flux); err != nil {
		return File{}, fmt.Errorf("%w: truncated flux: %v", ErrCorrupt, err)
	}

	want := sum.Sum32()
	var got uint32
	if err := binary.Read(gz, binary.LittleEndian, &got); err != nil {
		return File{}, fmt.Errorf("%w: missing checksum: %v", ErrCorrupt, err)
	}
	if got != want {
		return File{}, fmt.Errorf("%w: checksum mismatch (stored %08x, computed %08x)", ErrCorrupt, got, want)
	}

	f.Resolution = int(resolution)
	f.Spectrum, err = New(wavelength, flux)
	if err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return f, nil
}

func readPayloadHeader(r io.Reader, f *File, resolution, n *uint32) error {
	for _, v := range []any{&f.Temperature, &f.LogG, &f.Metallicity, resolution, n} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("%w: truncated header: %v", ErrCorrupt, err)
		}
	}
	return nil
}
