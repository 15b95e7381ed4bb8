package validation

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Code is a stable machine-readable reason for a file-level validation failure
type Code string

const (
	CodeFileTooLarge       Code = "FileTooLarge"
	CodeEmptyFile          Code = "EmptyFile"
	CodeEncodingError      Code = "EncodingError"
	CodeUnrecognizedFormat Code = "UnrecognizedFormat"
	CodeTooManyRows        Code = "TooManyRows"
	CodeMalformedCSV       Code = "MalformedCSV"
)

// Error is a file-level validation failure. It fails the entire upload before
// any row is processed.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Warning is a non-fatal sanitization note for a single row (1-based data row)
type Warning struct {
	Row     int
	Message string
}

// File is a validated, decoded, row-iterable upload. Every cell in Records
// has already been sanitized.
type File struct {
	header   map[string]int
	Records  [][]string
	Warnings []Warning
}

// Field returns the named column of a record, or "" if the column is absent
func (f *File) Field(record []string, name string) string {
	if idx, ok := f.header[strings.ToLower(name)]; ok && idx < len(record) {
		return strings.TrimSpace(record[idx])
	}
	return ""
}

// Validator validates and sanitizes raw viewing-history uploads
type Validator struct {
	maxFileSize int64
	maxRows     int
	maxCellLen  int
}

// NewValidator creates a Validator with the given ceilings
func NewValidator(maxFileSize int64, maxRows, maxCellLen int) *Validator {
	return &Validator{
		maxFileSize: maxFileSize,
		maxRows:     maxRows,
		maxCellLen:  maxCellLen,
	}
}

// formula trigger characters recognized by spreadsheet applications
const formulaTriggers = "=+-@"

// ValidateFile validates raw upload bytes and returns a sanitized row-iterable
// structure. Checks are ordered so that cheap size and shape limits run before
// any decoding or parsing of adversarial input.
func (v *Validator) ValidateFile(content []byte) (*File, *Error) {
	if int64(len(content)) > v.maxFileSize {
		return nil, &Error{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("file too large, maximum size is %d MB", v.maxFileSize/(1024*1024)),
		}
	}
	if len(content) == 0 {
		return nil, &Error{Code: CodeEmptyFile, Message: "empty file uploaded"}
	}

	text, err := decode(content)
	if err != nil {
		return nil, &Error{
			Code:    CodeEncodingError,
			Message: "file encoding not supported, use UTF-8 or Latin-1",
		}
	}

	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	delimiter := ','
	switch {
	case strings.ContainsRune(firstLine, ','):
	case strings.ContainsRune(firstLine, '\t'):
		delimiter = '\t'
	default:
		return nil, &Error{
			Code:    CodeUnrecognizedFormat,
			Message: "file does not appear to be a delimited export",
		}
	}

	// Line count is a cheap upper bound on the row count. It deliberately
	// runs before the CSV reader so an adversarial file cannot force a full
	// parse just to be rejected.
	if n := CountDataRows(text); n > v.maxRows {
		return nil, &Error{
			Code:    CodeTooManyRows,
			Message: fmt.Sprintf("too many rows (%d), maximum is %d", n, v.maxRows),
		}
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headerRec, err := reader.Read()
	if err != nil {
		return nil, &Error{Code: CodeMalformedCSV, Message: fmt.Sprintf("cannot read header: %v", err)}
	}
	header := make(map[string]int, len(headerRec))
	for i, h := range headerRec {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}

	file := &File{header: header}
	rowNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{Code: CodeMalformedCSV, Message: fmt.Sprintf("csv parsing error: %v", err)}
		}
		rowNum++

		for i, cell := range record {
			clean, truncated := v.SanitizeCell(cell)
			record[i] = clean
			if truncated {
				file.Warnings = append(file.Warnings, Warning{
					Row:     rowNum,
					Message: fmt.Sprintf("cell truncated to %d characters", v.maxCellLen),
				})
			}
		}
		file.Records = append(file.Records, record)
	}

	if len(file.Records) == 0 {
		return nil, &Error{Code: CodeEmptyFile, Message: "no data rows found"}
	}

	return file, nil
}

// CountDataRows returns the number of data rows (excluding the header) by
// counting line breaks, without materializing parsed rows.
func CountDataRows(text string) int {
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines - 1
}

// SanitizeCell neutralizes dangerous cell content. It strips NUL bytes,
// removes substrings usable for query injection, truncates overlong values
// and prefixes spreadsheet formula triggers with a quote so that re-exported
// data is inert. The returned bool reports whether truncation occurred.
func (v *Validator) SanitizeCell(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	value = strings.ReplaceAll(value, "\x00", "")

	// Defense in depth only: the repository layer uses parameterized
	// queries regardless.
	for _, seq := range []string{";", "--", "/*", "*/"} {
		value = strings.ReplaceAll(value, seq, "")
	}

	truncated := false
	if runes := []rune(value); len(runes) > v.maxCellLen {
		value = string(runes[:v.maxCellLen])
		truncated = true
	}

	value = strings.TrimSpace(value)
	if value != "" && strings.ContainsRune(formulaTriggers, rune(value[0])) {
		value = "'" + value
	}

	return value, truncated
}

// StripFormulaGuard removes the neutralization prefix added by SanitizeCell,
// restoring the semantic value for matching. Values that legitimately begin
// with a quote are left alone.
func StripFormulaGuard(value string) string {
	if len(value) >= 2 && value[0] == '\'' && strings.ContainsRune(formulaTriggers, rune(value[1])) {
		return value[1:]
	}
	return value
}

// decode interprets raw bytes as UTF-8, falling back to Latin-1
func decode(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF}))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
