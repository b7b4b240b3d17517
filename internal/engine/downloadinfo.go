package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// AttemptRecord is one entry in a job's history: the playlist URL used
// during that attempt plus descriptive metadata. Append-only within a job
// id.
type AttemptRecord struct {
	AttemptID   string   `json:"attempt_id"`
	PlaylistURL string   `json:"playlist_url"`
	Name        string   `json:"name"`
	Actress     string   `json:"actress"`
	HashTag     []string `json:"hash_tag"`
	CoverURL    string   `json:"cover_url"`
	Src         string   `json:"src"`
	Status      string   `json:"status"`
	HasChinese  bool     `json:"has_chinese"`
	ReleaseDate string   `json:"release_date,omitempty"`
	TimeLength  string   `json:"time_length,omitempty"`
}

// DownloadInfoStore is the append-only JSON log keyed by job id, used by
// the Segment Inventory to recover historical segment-name prefixes
// across playlist-URL rotations. All state fits in a single file; writes
// are serialized by mu and rewritten atomically (write-to-temp + rename),
// since the Multi-Job Executor may append for different jobs concurrently.
type DownloadInfoStore struct {
	path string
	mu   sync.Mutex

	onAppend func(id string, rec AttemptRecord)
}

// NewDownloadInfoStore returns a store backed by the JSON file at path.
func NewDownloadInfoStore(path string) *DownloadInfoStore {
	return &DownloadInfoStore{path: path}
}

// OnAppend registers a callback invoked after every successful Append,
// used by the CLI to mirror status into the Job Ledger. A ledger
// write failure inside the callback is the caller's concern, not the
// store's: Append itself always succeeds or fails solely on the JSON log.
func (s *DownloadInfoStore) OnAppend(fn func(id string, rec AttemptRecord)) {
	s.onAppend = fn
}

// Append adds a new attempt record under job's lowercased id. Assigns a
// fresh AttemptID if rec didn't already carry one, so every attempt in
// the JSON log has its own identifier; the record handed to the OnAppend
// callback carries it too. The Job Ledger does not store it.
func (s *DownloadInfoStore) Append(id string, rec AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.AttemptID == "" {
		rec.AttemptID = uuid.NewString()
	}

	data, err := s.load()
	if err != nil {
		return err
	}
	key := lowerID(id)
	data[key] = append(data[key], rec)
	if err := s.save(data); err != nil {
		return err
	}
	if s.onAppend != nil {
		s.onAppend(key, rec)
	}
	return nil
}

// LatestPlaylistURL returns the last recorded playlist URL for id, or ""
// if the job has no recorded attempts.
func (s *DownloadInfoStore) LatestPlaylistURL(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", err
	}
	records := data[lowerID(id)]
	if len(records) == 0 {
		return "", nil
	}
	return records[len(records)-1].PlaylistURL, nil
}

// History returns every recorded attempt for id, oldest first.
func (s *DownloadInfoStore) History(id string) ([]AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	return data[lowerID(id)], nil
}

func (s *DownloadInfoStore) load() (map[string][]AttemptRecord, error) {
	data := map[string][]AttemptRecord{}
	b, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return data, nil
	}
	if err != nil {
		return nil, newErr(KindInvalidInput, "DownloadInfoStore.load", s.path, err)
	}
	if len(b) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, newErr(KindInvalidInput, "DownloadInfoStore.load", s.path, err)
	}
	return data, nil
}

func (s *DownloadInfoStore) save(data map[string][]AttemptRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, b)
}

func lowerID(id string) string {
	return strings.ToLower(id)
}
