package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/KaramelBytes/sheetqa/internal/utils"
)

// historyFile is the on-disk form of a session log.
type historyFile struct {
	SessionID string          `json:"session_id"`
	Source    string          `json:"source,omitempty"`
	Entries   []Entry         `json:"entries"`
	Current   *AnalysisResult `json:"current,omitempty"`
	SavedAt   time.Time       `json:"saved_at"`
}

// HistoryPath returns dir/<session id>.json.
func HistoryPath(dir, sessionID string) string {
	return filepath.Join(dir, sessionID+".json")
}

// SaveHistory writes the log and current result using an atomic write.
func (s *Session) SaveHistory(path string) error {
	s.mu.RLock()
	hf := historyFile{
		SessionID: s.ID,
		Source:    s.source,
		Entries:   append([]Entry(nil), s.history...),
		Current:   s.current,
		SavedAt:   time.Now(),
	}
	s.mu.RUnlock()
	data, err := utils.PrettyJSON(hf)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, data)
}

// LoadHistory appends the entries stored at path to the log, after any
// turns the session already has. The stored current result is used only
// when the session has none. A missing file is not an error.
func (s *Session) LoadHistory(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read history: %w", err)
	}
	var hf historyFile
	if err := json.Unmarshal(b, &hf); err != nil {
		return fmt.Errorf("parse history: %w", err)
	}
	s.mu.Lock()
	s.history = append(s.history, hf.Entries...)
	if s.current == nil {
		s.current = hf.Current
	}
	s.mu.Unlock()
	return nil
}
