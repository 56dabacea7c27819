package ledger

import (
	"errors"

	"github.com/betbot/nadsniper/internal/domain"
	"github.com/betbot/nadsniper/pkg/persistence"
)

// JSONStore keeps the records as a JSON array (sniped_tokens.json format).
type JSONStore struct {
	file *persistence.JSONFile
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{file: persistence.NewJSONFile(path)}
}

func (s *JSONStore) Load() ([]domain.HoldingRecord, error) {
	var out []domain.HoldingRecord
	if err := s.file.Load(&out); err != nil {
		if errors.Is(err, persistence.ErrNotExists) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (s *JSONStore) Save(records []domain.HoldingRecord) error {
	if records == nil {
		records = []domain.HoldingRecord{}
	}
	return s.file.Save(records)
}
