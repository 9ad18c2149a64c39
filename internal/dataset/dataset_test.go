package dataset

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webvoice/access-assistant/internal/action"
)

func writeJSON(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func readLines(t *testing.T, path string) []Sample {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var samples []Sample
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	for sc.Scan() {
		var s Sample
		require.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		samples = append(samples, s)
	}
	require.NoError(t, sc.Err())
	return samples
}

func TestMergeManualAndAuto(t *testing.T) {
	manualDir := t.TempDir()
	autoDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "merged.jsonl")

	writeJSON(t, manualDir, "session_1.json", ManualRecord{
		URL:            "https://example.com",
		UserQuery:      "log in",
		OriginalScrape: json.RawMessage(`{"elements":[]}`),
		CorrectActions: []action.Spec{{Action: action.Click, Target: "button#login"}},
	})

	yes := true
	writeJSON(t, autoDir, "label_1.json", AutoRecord{
		URL:         "https://example.com",
		Query:       "search for shoes",
		ScrapedData: json.RawMessage(`{"elements":[]}`),
		LLMResponse: json.RawMessage(`{"action_sequence":[{"action":"fill","target":"input#q","value":"shoes"}],"verbal_guide":"Type shoes."}`),
		Correct:     &yes,
	})

	stats, err := Merge(manualDir, autoDir, out, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Stats{Manual: 1, Auto: 1, Total: 2}, stats)

	samples := readLines(t, out)
	require.Len(t, samples, 2)

	// manual samples come first and carry no verbal guide
	assert.Contains(t, samples[0].Instruction, "log in")
	assert.Contains(t, samples[0].Instruction, "URL: https://example.com")
	assert.Contains(t, samples[0].Instruction, "Scraped Data:")
	assert.Equal(t, "", samples[0].Output.VerbalGuide)
	require.Len(t, samples[0].Output.ActionSequence, 1)

	assert.Equal(t, "Type shoes.", samples[1].Output.VerbalGuide)
}

func TestMergeExcludesRejectedLabels(t *testing.T) {
	autoDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "merged.jsonl")

	no := false
	writeJSON(t, autoDir, "rejected.json", AutoRecord{
		URL:         "https://example.com",
		Query:       "do the thing",
		ScrapedData: json.RawMessage(`"elements"`),
		LLMResponse: json.RawMessage(`{"action_sequence":[]}`),
		Correct:     &no,
	})
	// no verdict yet counts as usable
	writeJSON(t, autoDir, "unreviewed.json", AutoRecord{
		URL:         "https://example.com",
		Query:       "do the thing",
		ScrapedData: json.RawMessage(`"elements"`),
		LLMResponse: json.RawMessage(`{"action_sequence":[]}`),
	})

	stats, err := Merge(t.TempDir(), autoDir, out, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Auto)
}

func TestMergeHandlesStringEncodedResponse(t *testing.T) {
	autoDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "merged.jsonl")

	writeJSON(t, autoDir, "label.json", AutoRecord{
		URL:         "https://example.com",
		Query:       "press enter",
		ScrapedData: json.RawMessage(`"scrape text"`),
		LLMResponse: json.RawMessage(`"{\"action_sequence\":[{\"action\":\"press\",\"target\":\"input#q\",\"key\":\"Enter\"}],\"verbal_guide\":\"Press Enter.\"}"`),
	})

	stats, err := Merge(t.TempDir(), autoDir, out, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Auto)

	samples := readLines(t, out)
	require.Len(t, samples, 1)
	assert.Contains(t, samples[0].Instruction, "Scraped Data:\nscrape text")
	require.Len(t, samples[0].Output.ActionSequence, 1)
	assert.Equal(t, "Enter", samples[0].Output.ActionSequence[0].Key)
}

func TestMergeSkipsMalformedAndIncomplete(t *testing.T) {
	manualDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "merged.jsonl")

	require.NoError(t, os.WriteFile(filepath.Join(manualDir, "broken.json"), []byte("{not json"), 0o644))
	writeJSON(t, manualDir, "no_query.json", ManualRecord{
		URL:            "https://example.com",
		OriginalScrape: json.RawMessage(`{}`),
		CorrectActions: []action.Spec{},
	})
	require.NoError(t, os.WriteFile(filepath.Join(manualDir, "notes.txt"), []byte("ignore me"), 0o644))

	stats, err := Merge(manualDir, t.TempDir(), out, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}

func TestMergeMissingDirsProduceEmptyFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "merged.jsonl")
	stats, err := Merge("/nonexistent/manual", "/nonexistent/auto", out, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}
