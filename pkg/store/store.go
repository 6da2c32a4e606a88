// Package store persists the device profile as a flat blob behind a magic
// marker, in a file-backed EEPROM image, and as human-editable YAML.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/james-see/dfam2cv/pkg/cv"
	"github.com/james-see/dfam2cv/pkg/engine"
)

// Magic marks a configured image
var Magic = [2]byte{0xBB, 0xBB}

const (
	// ImageSize is the size of the EEPROM image
	ImageSize = 1024
	// BlobSize is the length of an encoded profile
	BlobSize = len(Magic) + engine.SettingsSize + 2*cv.SettingsSize
	erased   = 0xFF
)

var (
	// ErrNotConfigured means the magic marker is missing; callers should
	// write defaults
	ErrNotConfigured = errors.New("store: device not configured")
	// ErrShortBlob means the image is too small to hold a profile
	ErrShortBlob = errors.New("store: blob too short")
)

// Encode serializes a profile: magic, global settings, lane A, lane B
func Encode(p engine.Profile) ([]byte, error) {
	out := make([]byte, 0, BlobSize)
	out = append(out, Magic[:]...)
	parts := []interface{ MarshalBinary() ([]byte, error) }{p.Global, p.A, p.B}
	for _, part := range parts {
		b, err := part.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode settings: %w", err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// Decode parses a blob produced by Encode. Trailing bytes are ignored.
func Decode(data []byte) (engine.Profile, error) {
	var p engine.Profile
	if len(data) < len(Magic) || data[0] != Magic[0] || data[1] != Magic[1] {
		return p, ErrNotConfigured
	}
	if len(data) < BlobSize {
		return p, fmt.Errorf("%w: %d bytes, need %d", ErrShortBlob, len(data), BlobSize)
	}

	off := len(Magic)
	if err := p.Global.UnmarshalBinary(data[off : off+engine.SettingsSize]); err != nil {
		return p, err
	}
	off += engine.SettingsSize
	if err := p.A.UnmarshalBinary(data[off : off+cv.SettingsSize]); err != nil {
		return p, err
	}
	off += cv.SettingsSize
	if err := p.B.UnmarshalBinary(data[off : off+cv.SettingsSize]); err != nil {
		return p, err
	}
	return p, nil
}

// File is an EEPROM image on disk
type File struct {
	Path string
}

// Load reads the profile. A missing file or an erased image returns
// ErrNotConfigured.
func (f File) Load() (engine.Profile, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return engine.Profile{}, ErrNotConfigured
	}
	if err != nil {
		return engine.Profile{}, fmt.Errorf("failed to read config image: %w", err)
	}
	return Decode(data)
}

// LoadOrDefault loads the profile, writing and returning defaults when the
// image is not configured
func (f File) LoadOrDefault() (engine.Profile, error) {
	p, err := f.Load()
	if errors.Is(err, ErrNotConfigured) {
		p = engine.DefaultProfile()
		return p, f.Save(p)
	}
	return p, err
}

// Save writes the profile into an erased image
func (f File) Save(p engine.Profile) error {
	blob, err := Encode(p)
	if err != nil {
		return err
	}
	img := bytes.Repeat([]byte{erased}, ImageSize)
	copy(img, blob)
	if err := os.WriteFile(f.Path, img, 0o644); err != nil {
		return fmt.Errorf("failed to write config image: %w", err)
	}
	return nil
}

// Erase resets the image to the unconfigured state
func (f File) Erase() error {
	if err := os.WriteFile(f.Path, bytes.Repeat([]byte{erased}, ImageSize), 0o644); err != nil {
		return fmt.Errorf("failed to erase config image: %w", err)
	}
	return nil
}

// ExportYAML writes the profile as YAML
func ExportYAML(w io.Writer, p engine.Profile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// ImportYAML reads a profile from YAML. Missing fields keep their default
// values and the result is validated.
func ImportYAML(r io.Reader) (engine.Profile, error) {
	p := engine.DefaultProfile()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return engine.Profile{}, fmt.Errorf("failed to decode YAML: %w", err)
	}
	p.Validate()
	return p, nil
}
