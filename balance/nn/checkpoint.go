package nn

import (
	"compress/gzip"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/baldhumanity/polebalance-go/balance/internal/atomicfile"
	"gonum.org/v1/gonum/mat"
)

// CodecVersion is written into every saved network.
const CodecVersion = 1

// ErrVersionMismatch is returned when a saved network was written by an unknown codec version.
var ErrVersionMismatch = errors.New("network record version mismatch")

// netRecord is the on-disk form of a NeuralNet. Weights are stored row-major per layer.
type netRecord struct {
	Version     int
	LayerSizes  []int
	Activations []string
	Weights     [][]float64
	WeightRange float64
}

// Save writes the network to w as a gzip-compressed gob record.
func (net *NeuralNet) Save(w io.Writer) error {
	rec := netRecord{
		Version:     CodecVersion,
		LayerSizes:  net.LayerSizes(),
		Activations: make([]string, len(net.activations)),
		Weights:     make([][]float64, len(net.weights)),
		WeightRange: net.weightRange,
	}
	for i, a := range net.activations {
		rec.Activations[i] = a.String()
	}
	for i, wm := range net.weights {
		r, c := wm.Dims()
		data := make([]float64, 0, r*c)
		for row := 0; row < r; row++ {
			data = append(data, wm.RawRowView(row)...)
		}
		rec.Weights[i] = data
	}

	gzWriter := gzip.NewWriter(w)
	if err := gob.NewEncoder(gzWriter).Encode(rec); err != nil {
		_ = gzWriter.Close()
		return fmt.Errorf("failed to encode network: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to flush network: %w", err)
	}
	return nil
}

// Load reads a network written by Save.
func Load(r io.Reader) (*NeuralNet, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for network: %w", err)
	}
	defer gzReader.Close()

	var rec netRecord
	if err := gob.NewDecoder(gzReader).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode network: %w", err)
	}
	return rec.toNet()
}

func (rec netRecord) toNet() (*NeuralNet, error) {
	if rec.Version != CodecVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, rec.Version, CodecVersion)
	}
	if len(rec.LayerSizes) < 2 {
		return nil, fmt.Errorf("network record needs at least 2 layers, got %d", len(rec.LayerSizes))
	}
	if len(rec.Activations) != len(rec.LayerSizes) {
		return nil, fmt.Errorf("network record has %d activations for %d layers", len(rec.Activations), len(rec.LayerSizes))
	}
	if len(rec.Weights) != len(rec.LayerSizes)-1 {
		return nil, fmt.Errorf("network record has %d weight matrices for %d layers", len(rec.Weights), len(rec.LayerSizes))
	}

	net := &NeuralNet{
		nodes:       make([][]float64, len(rec.LayerSizes)),
		weights:     make([]*mat.Dense, len(rec.Weights)),
		activations: make([]Activation, len(rec.Activations)),
		weightRange: rec.WeightRange,
	}
	for i, size := range rec.LayerSizes {
		if size <= 0 {
			return nil, fmt.Errorf("network record layer %d has size %d", i, size)
		}
		net.nodes[i] = make([]float64, size)
	}
	for i, name := range rec.Activations {
		a, err := ParseActivation(name)
		if err != nil {
			return nil, fmt.Errorf("network record layer %d: %w", i, err)
		}
		net.activations[i] = a
	}
	for i, data := range rec.Weights {
		rows, cols := rec.LayerSizes[i+1], rec.LayerSizes[i]
		if len(data) != rows*cols {
			return nil, fmt.Errorf("network record weight layer %d has %d values, want %d", i, len(data), rows*cols)
		}
		net.weights[i] = mat.NewDense(rows, cols, append([]float64(nil), data...))
	}
	return net, nil
}

// SaveFile writes the network to path. The file is written to a temporary sibling first
// and renamed into place, so an interrupted save never leaves a truncated network behind.
func (net *NeuralNet) SaveFile(path string) error {
	return atomicfile.Write(path, net.Save)
}

// LoadFile reads a network from path.
func LoadFile(path string) (*NeuralNet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open network file '%s': %w", path, err)
	}
	defer file.Close()

	net, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load network file '%s': %w", path, err)
	}
	return net, nil
}

// LoadDir loads every regular file in dir as a network, in file name order.
// Files that fail to load are logged and skipped.
func LoadDir(dir string, logger *slog.Logger) ([]*NeuralNet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read network directory '%s': %w", dir, err)
	}

	var nets []*NeuralNet
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		net, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping network file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		nets = append(nets, net)
	}
	return nets, nil
}

// LoadPath loads a single network file, or every network in a directory.
func LoadPath(path string, logger *slog.Logger) ([]*NeuralNet, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat network path '%s': %w", path, err)
	}
	if info.IsDir() {
		return LoadDir(path, logger)
	}
	net, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return []*NeuralNet{net}, nil
}
