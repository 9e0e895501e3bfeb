package dplan

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type exportItem struct {
	Position int    `json:"position"`
	Current  string `json:"current"`
	Final    string `json:"final"`
	Size     int64  `json:"size"`
	Changed  bool   `json:"changed"`
}

type exportSummary struct {
	Prefix  string       `json:"prefix"`
	Width   int          `json:"width"`
	Count   int          `json:"count"`
	Changes int          `json:"changes"`
	Items   []exportItem `json:"items"`
}

// WriteJSON writes the plan preview to a JSON file.
func (p *Plan) WriteJSON(path string) error {
	data, err := json.MarshalIndent(p.collectExportSummary(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	file, err := secureOutputFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write JSON file %s: %w", path, err)
	}
	return nil
}

// WriteCSV writes the plan preview to a CSV file, one row per entry.
func (p *Plan) WriteCSV(path string) error {
	file, err := secureOutputFile(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"position", "current", "final", "size_bytes", "changed"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, it := range p.collectExportSummary().Items {
		row := []string{
			strconv.Itoa(it.Position),
			it.Current,
			it.Final,
			strconv.FormatInt(it.Size, 10),
			strconv.FormatBool(it.Changed),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush CSV writer: %w", err)
	}
	return nil
}

func (p *Plan) collectExportSummary() exportSummary {
	if p == nil {
		return exportSummary{}
	}
	items := make([]exportItem, len(p.Items))
	for i, it := range p.Items {
		items[i] = exportItem{
			Position: it.Seq,
			Current:  it.Current,
			Final:    it.Final,
			Size:     it.Size,
			Changed:  it.Changed(),
		}
	}
	return exportSummary{
		Prefix:  p.Prefix,
		Width:   p.Width,
		Count:   len(items),
		Changes: p.Changes(),
		Items:   items,
	}
}

func secureOutputFile(path string) (*os.File, error) {
	if path == "" {
		return nil, errors.New("output path is empty")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("resolve output path %s: %w", path, err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return nil, fmt.Errorf("output path %s is a directory", abs)
	}

	return openFileSecure(abs, filepath.Dir(abs), filepath.Base(abs))
}
