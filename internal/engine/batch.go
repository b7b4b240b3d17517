package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// batchFile is the on-disk shape of a queue file: a top-level "jobs" key
// holding a list of job descriptors that use the same field names as
// Job's yaml tags.
type batchFile struct {
	Jobs []Job `yaml:"jobs"`
}

// LoadBatch reads a queue file and returns the jobs it describes, each
// constructed through NewJob so BaseURL and Status are derived
// consistently regardless of how the file was authored.
func LoadBatch(path string) ([]Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: read %s: %w", path, err)
	}

	var bf batchFile
	if err := yaml.Unmarshal(raw, &bf); err != nil {
		return nil, fmt.Errorf("batch: parse %s: %w", path, err)
	}

	jobs := make([]Job, 0, len(bf.Jobs))
	seen := make(map[string]bool, len(bf.Jobs))
	for i, j := range bf.Jobs {
		if j.ID == "" {
			return nil, fmt.Errorf("batch: %s: entry %d is missing id", path, i)
		}
		if j.HLSURL == "" {
			return nil, fmt.Errorf("batch: %s: entry %d (%s) is missing hls_url", path, i, j.ID)
		}
		key := j.LowerID()
		if seen[key] {
			return nil, fmt.Errorf("batch: %s: duplicate job id %q", path, j.ID)
		}
		seen[key] = true
		job := NewJob(j.ID, j.Name, j.Actress, j.HashTag, j.HLSURL, j.CoverURL, j.Src)
		job.HasChinese = j.HasChinese
		job.ReleaseDate = j.ReleaseDate
		job.TimeLength = j.TimeLength
		jobs = append(jobs, job)
	}
	return jobs, nil
}
