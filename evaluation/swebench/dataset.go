package swebench

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mini/internal/logging"
)

// Hugging Face datasets-server endpoints per subset/split.
var datasetURLs = map[string]string{
	"lite/dev":      "https://datasets-server.huggingface.co/rows?dataset=princeton-nlp/SWE-bench_Lite&config=default&split=dev&offset=0&length=300",
	"lite/test":     "https://datasets-server.huggingface.co/rows?dataset=princeton-nlp/SWE-bench_Lite&config=default&split=test&offset=0&length=300",
	"full/dev":      "https://datasets-server.huggingface.co/rows?dataset=princeton-nlp/SWE-bench&config=default&split=dev&offset=0&length=2294",
	"full/test":     "https://datasets-server.huggingface.co/rows?dataset=princeton-nlp/SWE-bench&config=default&split=test&offset=0&length=2294",
	"verified/test": "https://datasets-server.huggingface.co/rows?dataset=princeton-nlp/SWE-bench_Verified&config=default&split=test&offset=0&length=500",
}

// DatasetLoader fetches instances from the Hugging Face datasets server or a
// local file, caching downloads under ~/.mini/datasets/swebench.
type DatasetLoader struct {
	client   *http.Client
	cacheDir string
	logger   logging.Logger
}

// NewDatasetLoader builds a loader with the default cache directory.
func NewDatasetLoader(logger logging.Logger) *DatasetLoader {
	cacheDir := "swebench-cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".mini", "datasets", "swebench")
	}
	return &DatasetLoader{
		client:   &http.Client{Timeout: 10 * time.Minute},
		cacheDir: cacheDir,
		logger:   logging.OrNop(logger),
	}
}

// Load returns the instances selected by config, filtered and ordered.
func (dl *DatasetLoader) Load(ctx context.Context, config DatasetConfig) ([]Instance, error) {
	var instances []Instance
	var err error
	switch config.Type {
	case "swe_bench", "":
		instances, err = dl.loadRemote(ctx, config)
	case "file":
		instances, err = dl.loadFile(config.FilePath)
	default:
		return nil, fmt.Errorf("unsupported dataset type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}
	return applyFiltering(instances, config), nil
}

func (dl *DatasetLoader) loadRemote(ctx context.Context, config DatasetConfig) ([]Instance, error) {
	subset := config.Subset
	if subset == "" {
		subset = "lite"
	}
	split := config.Split
	if split == "" {
		split = "test"
	}
	key := subset + "/" + split
	url, ok := datasetURLs[key]
	if !ok {
		return nil, fmt.Errorf("unsupported dataset: subset=%s split=%s", subset, split)
	}

	cached := filepath.Join(dl.cacheDir, strings.ReplaceAll(key, "/", "_")+".json")
	if _, err := os.Stat(cached); err == nil {
		dl.logger.Debug("Using cached dataset: %s", cached)
		return dl.loadFile(cached)
	}

	dl.logger.Info("Downloading dataset %s", key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build dataset request: %w", err)
	}
	resp, err := dl.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download dataset %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download dataset %s: unexpected status %s", key, resp.Status)
	}

	instances, err := parseRowsResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	if err := dl.writeCache(cached, instances); err != nil {
		dl.logger.Warn("Failed to cache dataset: %v", err)
	}
	return instances, nil
}

func (dl *DatasetLoader) writeCache(path string, instances []Instance) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(instances)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// loadFile reads instances from a JSON array or JSONL file.
func (dl *DatasetLoader) loadFile(path string) ([]Instance, error) {
	if path == "" {
		return nil, fmt.Errorf("dataset file path is empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset file: %w", err)
	}
	defer f.Close()

	if strings.HasSuffix(path, ".jsonl") {
		return parseJSONL(f)
	}
	var instances []Instance
	if err := json.NewDecoder(f).Decode(&instances); err != nil {
		return nil, fmt.Errorf("parse dataset file %s: %w", path, err)
	}
	return instances, nil
}

func parseJSONL(r io.Reader) ([]Instance, error) {
	var instances []Instance
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var inst Instance
		if err := json.Unmarshal([]byte(line), &inst); err != nil {
			return nil, fmt.Errorf("parse jsonl line: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, scanner.Err()
}

// parseRowsResponse unwraps the datasets-server rows envelope.
func parseRowsResponse(r io.Reader) ([]Instance, error) {
	var envelope struct {
		Rows []struct {
			Row Instance `json:"row"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("parse datasets-server response: %w", err)
	}
	instances := make([]Instance, 0, len(envelope.Rows))
	for _, row := range envelope.Rows {
		instances = append(instances, row.Row)
	}
	return instances, nil
}

// applyFiltering narrows and orders instances: explicit IDs win, then slice,
// then shuffle, then limit.
func applyFiltering(instances []Instance, config DatasetConfig) []Instance {
	if len(config.InstanceIDs) > 0 {
		wanted := make(map[string]bool, len(config.InstanceIDs))
		for _, id := range config.InstanceIDs {
			wanted[id] = true
		}
		filtered := make([]Instance, 0, len(config.InstanceIDs))
		for _, inst := range instances {
			if wanted[inst.ID] {
				filtered = append(filtered, inst)
			}
		}
		instances = filtered
	}

	if len(config.InstanceSlice) == 2 {
		start, end := config.InstanceSlice[0], config.InstanceSlice[1]
		if start < 0 {
			start = 0
		}
		if end > len(instances) {
			end = len(instances)
		}
		if start < end {
			instances = instances[start:end]
		} else {
			instances = nil
		}
	}

	if config.Shuffle {
		shuffled := make([]Instance, len(instances))
		copy(shuffled, instances)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		instances = shuffled
	}

	if config.InstanceLimit > 0 && config.InstanceLimit < len(instances) {
		instances = instances[:config.InstanceLimit]
	}
	return instances
}
