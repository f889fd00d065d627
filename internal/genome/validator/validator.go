// Package validator checks genome uploads before they reach the store. A
// body is only accepted if it parses as FASTA.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/sequence"
	apperrors "github.com/Adithya-Monish-Kumar-K/genome-search/pkg/errors"
)

// Limits bounds an upload.
type Limits struct {
	MaxFileNameLength int
	MaxBodyBytes      int64
}

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateUpload checks the file name and body and returns the parsed
// document on success.
func ValidateUpload(fileName, body string, limits Limits) (*sequence.Document, error) {
	errs := make(map[string]string)

	name := strings.TrimSpace(fileName)
	switch {
	case name == "":
		errs["file_name"] = "file name is required"
	case limits.MaxFileNameLength > 0 && len(name) > limits.MaxFileNameLength:
		errs["file_name"] = fmt.Sprintf("file name must be at most %d characters", limits.MaxFileNameLength)
	}

	var doc *sequence.Document
	switch {
	case strings.TrimSpace(body) == "":
		errs["body"] = "genome file must not be empty"
	case limits.MaxBodyBytes > 0 && int64(len(body)) > limits.MaxBodyBytes:
		errs["body"] = fmt.Sprintf("genome file must be at most %d bytes", limits.MaxBodyBytes)
	default:
		parsed, err := sequence.Parse(body)
		if err != nil {
			if !errors.Is(err, apperrors.ErrParse) {
				return nil, err
			}
			errs["body"] = err.Error()
		}
		doc = parsed
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return doc, nil
}
