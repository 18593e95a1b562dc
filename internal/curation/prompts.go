package curation

import (
	"bytes"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	apperrors "TTSCurator/pkg/errors"
)

// NormalizeText brings prompt text to NFC so the same visible sentence always
// resolves to one prompt and one filename.
func NormalizeText(s string) string {
	return norm.NFC.String(s)
}

// Filename is the storage key of a prompt's audio: md5 of the prompt text
// plus ".wav". Re-uploads and idempotency checks depend on it being stable.
func Filename(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:]) + ".wav"
}

// ParsePromptsText splits newline separated prompts, dropping blank lines.
func ParsePromptsText(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, apperrors.Validation("No prompts provided")
	}
	var prompts []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			prompts = append(prompts, NormalizeText(line))
		}
	}
	if len(prompts) == 0 {
		return nil, apperrors.Validation("No valid prompts found in text")
	}
	return prompts, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParsePromptsCSV takes the first column of every row. Rows may have
// different widths.
func ParsePromptsCSV(filename string, r io.Reader) ([]string, error) {
	if !strings.HasSuffix(filename, ".csv") {
		return nil, apperrors.Validation("File must be a CSV")
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Validation("Failed to read CSV")
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var prompts []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.Validation("Invalid CSV: " + err.Error())
		}
		if len(row) == 0 {
			continue
		}
		if cell := strings.TrimSpace(row[0]); cell != "" {
			prompts = append(prompts, NormalizeText(cell))
		}
	}
	if len(prompts) == 0 {
		return nil, apperrors.Validation("No valid prompts found in CSV")
	}
	return prompts, nil
}
