package balance

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/baldhumanity/polebalance-go/balance/internal/atomicfile"
)

// HistorySaveData is the on-disk form of a run's score history.
type HistorySaveData struct {
	RunID       string
	RandomMixin float64     // Mixin fraction, used to mark the fresh agents in plots
	Scores      [][]float64 // Final scores per generation, in population order
}

// SaveHistory writes the score history to filePath with gzip compression.
// The file is replaced atomically.
func SaveHistory(filePath string, data HistorySaveData) error {
	err := atomicfile.Write(filePath, func(w io.Writer) error {
		gzWriter := gzip.NewWriter(w)
		if err := gob.NewEncoder(gzWriter).Encode(data); err != nil {
			_ = gzWriter.Close()
			return fmt.Errorf("failed to encode score history: %w", err)
		}
		return gzWriter.Close()
	})
	if err != nil {
		return fmt.Errorf("failed to save score history to '%s': %w", filePath, err)
	}
	return nil
}

// LoadHistory reads a score history written by SaveHistory.
func LoadHistory(filePath string) (HistorySaveData, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return HistorySaveData{}, fmt.Errorf("failed to open history file '%s': %w", filePath, err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return HistorySaveData{}, fmt.Errorf("failed to create gzip reader for history: %w", err)
	}
	defer gzReader.Close()

	var data HistorySaveData
	if err := gob.NewDecoder(gzReader).Decode(&data); err != nil {
		return HistorySaveData{}, fmt.Errorf("failed to decode score history: %w", err)
	}
	return data, nil
}
