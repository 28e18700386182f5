package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/Pahihq/ctfd-parser/internal/model"
)

// IndexFile is the manifest written at the top of the output root.
const IndexFile = "INDEX.md"

// IndexTitle is the manifest heading.
const IndexTitle = "CTF Dump Index"

// IndexHeader lists the manifest columns.
var IndexHeader = []string{"#", "Category", "Title", "URL", "Local path", "Files"}

// SortOutcomes orders outcomes by case-insensitive title, keeping the input
// order among equal titles.
func SortOutcomes(outcomes []model.Outcome) []model.Outcome {
	sorted := slices.Clone(outcomes)
	slices.SortStableFunc(sorted, func(a, b model.Outcome) int {
		return strings.Compare(strings.ToLower(a.Record.Title), strings.ToLower(b.Record.Title))
	})
	return sorted
}

// IndexRows renders the manifest rows. Local paths are relative to
// outputRoot with forward slashes.
func IndexRows(outcomes []model.Outcome, outputRoot string) ([][]string, error) {
	root, err := filepath.Abs(outputRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output root: %w", err)
	}

	sorted := SortOutcomes(outcomes)
	rows := make([][]string, 0, len(sorted))
	for i, o := range sorted {
		rel, err := filepath.Rel(root, o.Dir)
		if err != nil {
			rel = o.Dir
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			escapeCell(o.Record.Category),
			escapeCell(o.Record.Title),
			o.Record.Source,
			"`" + filepath.ToSlash(rel) + "`",
			strconv.Itoa(o.SavedFiles),
		})
	}
	return rows, nil
}

// RenderIndex renders the manifest document.
func RenderIndex(outcomes []model.Outcome, outputRoot string) ([]byte, error) {
	rows, err := IndexRows(outcomes, outputRoot)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	md := markdown.NewMarkdown(&buf)
	md.H1(IndexTitle)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: IndexHeader,
		Rows:   rows,
	})
	if err := md.Build(); err != nil {
		return nil, fmt.Errorf("failed to render index: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildIndex writes outputRoot/INDEX.md, replacing any previous manifest,
// and returns its path. It writes nothing and returns "" for no outcomes.
func BuildIndex(outcomes []model.Outcome, outputRoot string) (string, error) {
	if len(outcomes) == 0 {
		return "", nil
	}

	content, err := RenderIndex(outcomes, outputRoot)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(outputRoot, 0750); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputRoot, IndexFile)
	if err := os.WriteFile(path, content, 0640); err != nil {
		return "", fmt.Errorf("failed to write index: %w", err)
	}
	return path, nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
