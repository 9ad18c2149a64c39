// Package dataset merges manual recordings and confirmed model labels into
// one JSONL file for fine-tuning. Every line carries "instruction" and
// "output" with the same shape regardless of which source produced it.
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/webvoice/access-assistant/internal/action"
)

// Sample is one training line.
type Sample struct {
	Instruction string `json:"instruction"`
	Output      Output `json:"output"`
}

type Output struct {
	ActionSequence []action.Spec `json:"action_sequence"`
	VerbalGuide    string        `json:"verbal_guide"`
}

// ManualRecord is what the recorder endpoint persists: the page, the request,
// the scrape the user saw, and the actions they actually performed.
type ManualRecord struct {
	URL            string          `json:"url"`
	UserQuery      string          `json:"user_query"`
	OriginalScrape json.RawMessage `json:"original_scrape"`
	CorrectActions []action.Spec   `json:"correct_actions"`
}

// AutoRecord is a labeled model suggestion. Correct is a pointer because an
// unreviewed label has no verdict; only an explicit false excludes it.
type AutoRecord struct {
	URL         string          `json:"url"`
	Query       string          `json:"query"`
	ScrapedData json.RawMessage `json:"scraped_data"`
	LLMResponse json.RawMessage `json:"llm_response"`
	Correct     *bool           `json:"correct,omitempty"`
}

type Stats struct {
	Manual int
	Auto   int
	Total  int
}

// Merge reads every .json file under manualDir and autoDir and writes the
// combined JSONL to outPath. Malformed files are logged and skipped, never
// fatal; a missing source directory just contributes zero samples.
func Merge(manualDir, autoDir, outPath string, logger zerolog.Logger) (Stats, error) {
	manual := collect(manualDir, logger, parseManual)
	auto := collect(autoDir, logger, parseAuto)

	out, err := os.Create(outPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create %s: %w", outPath, err)
	}
	defer out.Close()

	enc := json.NewEncoder(out)
	for _, s := range append(manual, auto...) {
		if err := enc.Encode(s); err != nil {
			return Stats{}, fmt.Errorf("write %s: %w", outPath, err)
		}
	}

	stats := Stats{Manual: len(manual), Auto: len(auto), Total: len(manual) + len(auto)}
	logger.Info().
		Int("manual", stats.Manual).
		Int("auto", stats.Auto).
		Int("total", stats.Total).
		Str("output", outPath).
		Msg("dataset merged")
	return stats, nil
}

func collect(dir string, logger zerolog.Logger, parse func([]byte) (Sample, bool, error)) []Sample {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var samples []Sample
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable file")
			continue
		}
		sample, ok, err := parse(data)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("skipping malformed file")
			continue
		}
		if ok {
			samples = append(samples, sample)
		}
	}
	return samples
}

func parseManual(data []byte) (Sample, bool, error) {
	var rec ManualRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Sample{}, false, err
	}
	url := strings.TrimSpace(rec.URL)
	query := strings.TrimSpace(rec.UserQuery)
	if url == "" || query == "" || rec.OriginalScrape == nil || rec.CorrectActions == nil {
		return Sample{}, false, nil
	}
	return Sample{
		Instruction: instruction(query, url, rec.OriginalScrape),
		Output:      Output{ActionSequence: rec.CorrectActions, VerbalGuide: ""},
	}, true, nil
}

func parseAuto(data []byte) (Sample, bool, error) {
	var rec AutoRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Sample{}, false, err
	}
	if rec.Correct != nil && !*rec.Correct {
		return Sample{}, false, nil
	}
	url := strings.TrimSpace(rec.URL)
	query := strings.TrimSpace(rec.Query)
	if url == "" || query == "" || rec.ScrapedData == nil || rec.LLMResponse == nil {
		return Sample{}, false, nil
	}

	// llm_response is stored either inline or as a JSON-encoded string
	payload := rec.LLMResponse
	var asString string
	if json.Unmarshal(payload, &asString) == nil {
		payload = json.RawMessage(asString)
	}
	var resp Output
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Sample{}, false, nil
	}
	if resp.ActionSequence == nil {
		resp.ActionSequence = []action.Spec{}
	}

	return Sample{
		Instruction: instruction(query, url, rec.ScrapedData),
		Output:      resp,
	}, true, nil
}

// instruction formats the training prompt. Scraped data stored as a JSON
// string is embedded verbatim; structured data is compacted first.
func instruction(query, url string, scraped json.RawMessage) string {
	var asString string
	scrapedStr := ""
	if json.Unmarshal(scraped, &asString) == nil {
		scrapedStr = asString
	} else {
		var buf bytes.Buffer
		if err := json.Compact(&buf, scraped); err == nil {
			scrapedStr = buf.String()
		} else {
			scrapedStr = string(scraped)
		}
	}
	return fmt.Sprintf("%s\n\nURL: %s\n\nScraped Data:\n%s", query, url, scrapedStr)
}
