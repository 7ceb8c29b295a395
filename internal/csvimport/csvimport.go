// Package csvimport parses bulk-advisor CSV files. It owns the structural
// contract (required header columns, quoting) while row-level validation
// and deduplication happen in the directory service, so the whole accepted
// batch lands in one commit.
package csvimport

import (
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"strings"

	"checkin/api/internal/directory"
)

// Header synonyms accepted for the name columns, matched case-insensitively.
var (
	firstNameHeaders = []string{"fname", "first_name", "firstname"}
	lastNameHeaders  = []string{"lname", "last_name", "lastname"}
)

func structuralError(message string) *directory.DomainError {
	return &directory.DomainError{
		Status:  http.StatusBadRequest,
		Code:    "IMPORT_ERROR",
		Message: message,
	}
}

func headerIndex(headers []string, accepted ...string) int {
	for i, header := range headers {
		for _, candidate := range accepted {
			if header == candidate {
				return i
			}
		}
	}
	return -1
}

func field(record []string, index int) string {
	if index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

// ParseAdvisorRows reads a CSV batch and returns one AdvisorFields per data
// row. Quoted fields with embedded commas and doubled-quote escapes are
// handled. A structural problem such as empty input, no data rows, or a
// missing required column aborts the whole batch with a descriptive error
// before any row is considered. Row content is not validated here.
func ParseAdvisorRows(r io.Reader) ([]directory.AdvisorFields, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, structuralError("Unable to read CSV: " + err.Error())
		}
		if blankRecord(record) {
			continue
		}
		records = append(records, record)
	}
	if len(records) < 2 {
		return nil, structuralError("CSV must include a header row and at least one advisor.")
	}

	headers := make([]string, len(records[0]))
	for i, header := range records[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(header))
	}

	firstIndex := headerIndex(headers, firstNameHeaders...)
	lastIndex := headerIndex(headers, lastNameHeaders...)
	emailIndex := headerIndex(headers, "email")
	usernameIndex := headerIndex(headers, "username")
	collegeIndex := headerIndex(headers, "college")
	if firstIndex < 0 || lastIndex < 0 || emailIndex < 0 || usernameIndex < 0 || collegeIndex < 0 {
		return nil, structuralError("CSV headers must include fname, lname, email, username, college.")
	}

	rows := make([]directory.AdvisorFields, 0, len(records)-1)
	for _, record := range records[1:] {
		rows = append(rows, directory.AdvisorFields{
			FirstName: field(record, firstIndex),
			LastName:  field(record, lastIndex),
			Email:     field(record, emailIndex),
			Username:  field(record, usernameIndex),
			College:   field(record, collegeIndex),
		})
	}
	return rows, nil
}

func blankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
