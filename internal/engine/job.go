package engine

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a Job, owned exclusively by the Driver
// that runs it. Transitions are linear except that Failed is reachable
// from any non-terminal state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusMerging     Status = "merging"
	StatusFinished    Status = "finished"
	StatusFailed      Status = "failed"
)

// String returns the string representation of Status.
func (s Status) String() string { return string(s) }

// IsActive reports whether the job is still being worked on.
func (s Status) IsActive() bool {
	return s == StatusDownloading || s == StatusMerging
}

// IsTerminal reports whether the job has reached a final state.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// Job is the descriptor the external scraper (or the CLI's batch loader)
// hands to the engine. It is never mutated except through Update, which
// re-derives BaseURL from a new playlist URL.
type Job struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Actress     string    `yaml:"actress" json:"actress"`
	HashTag     []string  `yaml:"hash_tag" json:"hash_tag"`
	HLSURL      string    `yaml:"hls_url" json:"hls_url"`
	CoverURL    string    `yaml:"cover_url" json:"cover_url"`
	Src         string    `yaml:"src" json:"src"`
	Status      Status    `yaml:"-" json:"status"`
	HasChinese  bool      `yaml:"has_chinese" json:"has_chinese"`
	ReleaseDate string    `yaml:"release_date" json:"release_date,omitempty"`
	TimeLength  string    `yaml:"time_length" json:"time_length,omitempty"`
	BaseURL     string    `yaml:"-" json:"-"`
	CreatedAt   time.Time `yaml:"-" json:"created_at"`
}

// NewJob constructs a Job and derives BaseURL from HLSURL.
func NewJob(id, name, actress string, hashTag []string, hlsURL, coverURL, src string) Job {
	j := Job{
		ID:       id,
		Name:     name,
		Actress:  actress,
		HashTag:  hashTag,
		HLSURL:   hlsURL,
		CoverURL: coverURL,
		Src:      src,
		Status:   StatusPending,
	}
	j.BaseURL = deriveBaseURL(hlsURL)
	return j
}

// Update replaces the job's playlist URL and re-derives BaseURL. The
// Playlist Fetcher does not call it: it always fetches the job's current
// HLSURL.
func (j *Job) Update(newPlaylistURL string) {
	if newPlaylistURL == "" {
		return
	}
	j.HLSURL = newPlaylistURL
	j.BaseURL = deriveBaseURL(newPlaylistURL)
}

// LowerID returns the lowercased job id used to derive every temp path.
func (j *Job) LowerID() string { return strings.ToLower(j.ID) }

// UpperID returns the uppercased job id used in the final output filename.
func (j *Job) UpperID() string { return strings.ToUpper(j.ID) }

// Key returns the structural identity tuple the original spec defines
// equality/hashing over: {id, name, actress, hls_url, cover_url, src}.
func (j *Job) Key() string {
	return strings.Join([]string{j.ID, j.Name, j.Actress, j.HLSURL, j.CoverURL, j.Src}, "\x00")
}

func deriveBaseURL(playlistURL string) string {
	idx := strings.LastIndex(playlistURL, "/")
	if idx < 0 {
		return playlistURL
	}
	return playlistURL[:idx+1]
}
