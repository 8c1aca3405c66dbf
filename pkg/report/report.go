// Package report serializes weave reports to CBOR for downstream tooling.
package report

import (
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so reports for identical inputs are
// byte-for-byte reproducible.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// WeaveReport summarizes one weaving run across any number of classes.
type WeaveReport struct {
	AdviceClass string        `cbor:"advice"`
	EnterType   string        `cbor:"enter_type,omitempty"`
	Exceptional bool          `cbor:"exceptional"`
	Suppressed  string        `cbor:"suppressed,omitempty"`
	GeneratedAt time.Time     `cbor:"generated_at"`
	Classes     []ClassReport `cbor:"classes"`
}

// ClassReport records the methods woven in one class file.
type ClassReport struct {
	Name    string         `cbor:"name"`
	Input   string         `cbor:"input,omitempty"`
	Methods []MethodReport `cbor:"methods"`
}

// MethodReport records one woven method.
type MethodReport struct {
	Name       string `cbor:"name"`
	Descriptor string `cbor:"descriptor"`
	SlotShift  int    `cbor:"slot_shift"`
	SizeBefore int    `cbor:"size_before"`
	SizeAfter  int    `cbor:"size_after"`
}

// Marshal serializes a report to canonical CBOR bytes.
func Marshal(r *WeaveReport) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// Unmarshal deserializes a report from CBOR bytes.
func Unmarshal(data []byte) (*WeaveReport, error) {
	var r WeaveReport
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report: unmarshal weave report: %w", err)
	}
	return &r, nil
}

// Write serializes the report and writes it to path.
func Write(path string, r *WeaveReport) error {
	data, err := Marshal(r)
	if err != nil {
		return fmt.Errorf("report: marshal weave report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// Read loads a report from path.
func Read(path string) (*WeaveReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: read %s: %w", path, err)
	}
	return Unmarshal(data)
}
