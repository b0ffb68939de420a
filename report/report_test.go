package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/dictstream/errs"
	"github.com/arloliu/dictstream/pipeline"
)

func sampleReport() *pipeline.Report {
	return &pipeline.Report{
		RunID:             "6f1c2b9e-0000-4000-8000-000000000001",
		Codec:             "Zstd",
		Policy:            "continuous",
		BlockSize:         4096,
		TrainChunkSize:    1 << 20,
		CompressChunkSize: 5 << 20,
		MaxDictSize:       112640,
		GenerationLag:     true,
		SourceSize:        10 << 20,
		Consumed:          10 << 20,
		CompressedSize:    2 << 20,
		Generations:       1,
		Windows:           2,
		FinalState:        pipeline.StateTerminal,
		TerminalReason:    "source exhausted",
		Elapsed:           1500 * time.Millisecond,
		Chunks: []pipeline.ChunkMetrics{
			{
				Window: 0, Size: 5 << 20, Blocks: 1280, CompressedSize: 1 << 20,
				Ratio: 5, State: pipeline.StateReady, Decision: pipeline.StateEmpty, Why: "continuous",
			},
			{
				Window: 1, Offset: 5 << 20, Size: 5 << 20, Blocks: 1280, CompressedSize: 1 << 20,
				Generation: 1, DictSize: 112640, LatestPublished: 1, Ratio: 5, Anomaly: true,
				State: pipeline.StateTerminal, Decision: pipeline.StateTerminal, Why: "source exhausted",
				Elapsed: 20 * time.Millisecond,
			},
		},
		Dictionaries: []pipeline.DictionaryEvent{
			{Generation: 1, Size: 4, Fingerprint: 0xdeadbeef, Dict: []byte("dict")},
		},
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleReport()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "terminal", decoded["final_state"])
	require.Equal(t, "continuous", decoded["policy"])
	require.Len(t, decoded["chunks"], 2)

	dicts := decoded["dictionaries"].([]any)
	require.NotContains(t, dicts[0], "Dict")
}

func TestMsgpack_ReadBack(t *testing.T) {
	rep := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMsgpack, rep))

	got, err := ReadMsgpack(&buf)
	require.NoError(t, err)
	require.Equal(t, rep.RunID, got.RunID)
	require.Equal(t, rep.FinalState, got.FinalState)
	require.Equal(t, rep.Elapsed, got.Elapsed)
	require.Equal(t, rep.Chunks, got.Chunks)
	require.Nil(t, got.Dictionaries[0].Dict)
	require.InDelta(t, 5.0, got.Ratio(), 1e-9)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleReport()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, []string{
		"1", "5242880", "5242880", "1280", "1048576", "0",
		"1", "112640", "1", "5.000000", "0.000000",
		"true", "terminal", "terminal", "source exhausted", "20000000",
	}, rows[2])
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, "xml", sampleReport())
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteFile(path, FormatJSON, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"run_id": "6f1c2b9e-0000-4000-8000-000000000001"`)

	err = WriteFile(filepath.Join(t.TempDir(), "missing", "report.json"), FormatJSON, sampleReport())
	require.Error(t, err)
}

func TestAppendRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.txt")
	require.NoError(t, AppendRatio(path, 3.5))
	require.NoError(t, AppendRatio(path, 4.25))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "3.500000\n4.250000\n", string(data))
}

func TestSaveDictionaries(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dicts")
	events := []pipeline.DictionaryEvent{
		{Generation: 1, Dict: []byte("first")},
		{Generation: 2},
		{Generation: 12, Dict: []byte("twelfth")},
	}

	paths, err := SaveDictionaries(dir, events)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "dict-0001.zdict"),
		filepath.Join(dir, "dict-0012.zdict"),
	}, paths)

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	require.Equal(t, "twelfth", string(data))
}
