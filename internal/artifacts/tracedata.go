package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"forgerun/internal/summary"
)

// TraceExt is the extension of saved trace files.
const TraceExt = ".mp"

// SaveTraceData writes data to dir/<stem>.mp and returns the path.
// The file is written to a temporary name first and renamed into place.
func SaveTraceData(dir, stem string, data *summary.TraceData) (path string, err error) {
	if data == nil {
		return "", errors.New("no trace data to save")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create trace dir: %w", err)
	}
	path = filepath.Join(dir, stem+TraceExt)

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create trace file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(data); err != nil {
		return "", fmt.Errorf("encode trace data: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("write trace file: %w", err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return "", fmt.Errorf("move trace file: %w", err)
	}
	return path, nil
}

// LoadTraceData reads a trace file written by SaveTraceData.
func LoadTraceData(path string) (*summary.TraceData, error) {
	// #nosec G304 -- path is a trace file produced by the runner
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data summary.TraceData
	if err := msgpack.NewDecoder(f).Decode(&data); err != nil {
		return nil, fmt.Errorf("%s: decode trace data: %w", path, err)
	}
	return &data, nil
}
