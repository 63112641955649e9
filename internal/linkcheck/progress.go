package linkcheck

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Progress records which trail reference URLs have already been checked in
// the current run, so an interrupted run resumes where it stopped instead of
// re-hitting every URL.
type Progress struct {
	RegionCode string            `json:"region_code"`
	StartedAt  time.Time         `json:"started_at"`
	Checked    map[string]string `json:"checked"` // trail ID -> outcome
}

func progressPath(dir, regionCode string) string {
	return filepath.Join(dir, fmt.Sprintf("linkcheck-%s.json", regionCode))
}

// LoadProgress reads the progress file for a region. A missing file starts a
// fresh run; a corrupt file is an error so a damaged run is never silently
// restarted.
func LoadProgress(dir, regionCode string, now time.Time) (*Progress, error) {
	data, err := os.ReadFile(progressPath(dir, regionCode))
	if errors.Is(err, os.ErrNotExist) {
		return &Progress{
			RegionCode: regionCode,
			StartedAt:  now,
			Checked:    make(map[string]string),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read progress file: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse progress file: %w", err)
	}
	if p.Checked == nil {
		p.Checked = make(map[string]string)
	}
	return &p, nil
}

// Save writes the progress file atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated file behind.
func (p *Progress) Save(dir string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}

	path := progressPath(dir, p.RegionCode)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace progress file: %w", err)
	}
	return nil
}

// RemoveProgress deletes the progress file once a run completes. A missing
// file is not an error.
func RemoveProgress(dir, regionCode string) error {
	err := os.Remove(progressPath(dir, regionCode))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove progress file: %w", err)
	}
	return nil
}
