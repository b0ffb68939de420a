// Package report writes pipeline run reports and run artifacts to disk.
//
// Reports can be written as indented JSON, as msgpack for compact storage,
// or as CSV with one row per compression window.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/pipeline"
)

// Supported report formats.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
	FormatCSV     = "csv"
)

// csvHeader lists the per-window columns written by WriteCSV.
var csvHeader = []string{
	"window", "offset", "size", "blocks", "compressed_size", "baseline_size",
	"generation", "dict_size", "latest_published", "ratio", "match_ratio",
	"anomaly", "state", "decision", "why", "elapsed_ns",
}

// Write serializes rep to w in the given format.
func Write(w io.Writer, format string, rep *pipeline.Report) error {
	switch format {
	case FormatJSON, "":
		return WriteJSON(w, rep)
	case FormatMsgpack:
		return WriteMsgpack(w, rep)
	case FormatCSV:
		return WriteCSV(w, rep)
	default:
		return fmt.Errorf("%w: report format '%s'", errs.ErrInvalidConfig, format)
	}
}

// WriteFile writes rep to path, creating or truncating the file.
func WriteFile(path, format string, rep *pipeline.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	if err := Write(f, format, rep); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// WriteJSON writes rep as indented JSON.
func WriteJSON(w io.Writer, rep *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}

	return nil
}

// WriteMsgpack writes rep as a single msgpack document.
func WriteMsgpack(w io.Writer, rep *pipeline.Report) error {
	data, err := msgpack.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal msgpack report: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write msgpack report: %w", err)
	}

	return nil
}

// ReadMsgpack decodes a report written by WriteMsgpack.
func ReadMsgpack(r io.Reader) (*pipeline.Report, error) {
	var rep pipeline.Report
	if err := msgpack.NewDecoder(r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("failed to decode msgpack report: %w", err)
	}

	return &rep, nil
}

// WriteCSV writes one row per compression window of rep, preceded by a header row.
func WriteCSV(w io.Writer, rep *pipeline.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, c := range rep.Chunks {
		row := []string{
			strconv.Itoa(c.Window),
			strconv.Itoa(c.Offset),
			strconv.Itoa(c.Size),
			strconv.Itoa(c.Blocks),
			strconv.Itoa(c.CompressedSize),
			strconv.Itoa(c.BaselineSize),
			strconv.FormatUint(c.Generation, 10),
			strconv.Itoa(c.DictSize),
			strconv.FormatUint(c.LatestPublished, 10),
			strconv.FormatFloat(c.Ratio, 'f', 6, 64),
			strconv.FormatFloat(c.MatchRatio, 'f', 6, 64),
			strconv.FormatBool(c.Anomaly),
			c.State.String(),
			c.Decision.String(),
			c.Why,
			strconv.FormatInt(c.Elapsed.Nanoseconds(), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// AppendRatio appends ratio as one "%f" line to the file at path, creating it if needed.
func AppendRatio(path string, ratio float64) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ratio file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%f\n", ratio); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append ratio: %w", err)
	}

	return f.Close()
}

// DictFileName returns the file name SaveDictionaries uses for a generation.
func DictFileName(generation uint64) string {
	return fmt.Sprintf("dict-%04d.zdict", generation)
}

// SaveDictionaries writes the dictionary of every event to dir, one file per
// generation, and returns the written paths.
//
// The directory is created when missing. Events without dictionary bytes are skipped.
func SaveDictionaries(dir string, events []pipeline.DictionaryEvent) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dictionary directory: %w", err)
	}

	paths := make([]string, 0, len(events))
	for _, ev := range events {
		if len(ev.Dict) == 0 {
			continue
		}

		path := filepath.Join(dir, DictFileName(ev.Generation))
		if err := os.WriteFile(path, ev.Dict, 0o644); err != nil {
			return paths, fmt.Errorf("failed to save dictionary %d: %w", ev.Generation, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}
