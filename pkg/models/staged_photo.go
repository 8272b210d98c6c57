package models

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// StagedPhoto is a file in the staging area whose name encodes the metadata
// used for correlation:
//
//	<cycle-name>_<pointer-id>_<defect-flag>_<fuel-element-id>_<capture-timestamp>.<ext>
//
// Example: CicloA_3_NOK_EC12_041225-154941.bmp
//
// Exactly five underscore-separated fields. The defect flag is OK or NOK,
// the capture timestamp is DDMMYY-HHMMSS (years are 20XX), and the extension
// is one of bmp/jpg/jpeg/png, matched case-insensitively.
type StagedPhoto struct {
	FileName      string
	SourcePath    string
	CycleName     string
	PointerID     string
	DefectFlag    string
	FuelElementID string
	CapturedAt    time.Time
}

const stagedPhotoTimeLayout = "020106-150405"

var stagedPhotoExtensions = map[string]bool{
	".bmp":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// Defect reports whether the filename's defect flag marks a failure (NOK).
func (p *StagedPhoto) Defect() bool {
	return strings.EqualFold(strings.TrimSpace(p.DefectFlag), "NOK")
}

// ParseStagedPhotoName parses a staged filename into its encoded metadata.
// Filenames that do not follow the contract are reported as errors; the
// caller leaves such files in staging untouched.
func ParseStagedPhotoName(name string) (*StagedPhoto, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !stagedPhotoExtensions[ext] {
		return nil, fmt.Errorf("unsupported extension %q in %q", ext, name)
	}

	stem := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(stem, "_")
	if len(parts) != 5 {
		return nil, fmt.Errorf("expected 5 underscore-separated fields in %q, got %d", name, len(parts))
	}

	flag := strings.ToUpper(strings.TrimSpace(parts[2]))
	if flag != "OK" && flag != "NOK" {
		return nil, fmt.Errorf("invalid defect flag %q in %q", parts[2], name)
	}

	ts, err := time.ParseInLocation(stagedPhotoTimeLayout, parts[4], time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid capture timestamp %q in %q: %w", parts[4], name, err)
	}

	return &StagedPhoto{
		FileName:      name,
		CycleName:     parts[0],
		PointerID:     parts[1],
		DefectFlag:    flag,
		FuelElementID: parts[3],
		CapturedAt:    ts,
	}, nil
}
