package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CountryRecord identifies a blocked country. Two records are the same
// country when their codes match; Name is display-only.
type CountryRecord struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// countryRecordJSON breaks the UnmarshalJSON recursion.
type countryRecordJSON CountryRecord

// UnmarshalJSON accepts either a {code,name} object or the legacy form where
// the object was itself JSON-encoded into a string.
func (c *CountryRecord) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		data = []byte(inner)
	}
	var rec countryRecordJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("decoding country record: %w", err)
	}
	rec.Code = strings.TrimSpace(rec.Code)
	if rec.Code == "" {
		return fmt.Errorf("decoding country record: empty code")
	}
	*c = CountryRecord(rec)
	return nil
}

// Stringified returns the record JSON-encoded as a string, the element form
// used by the export file's countryBlock list.
func (c CountryRecord) Stringified() string {
	b, _ := json.Marshal(countryRecordJSON(c))
	return string(b)
}

// CountryRecords is an ordered list of blocked countries.
type CountryRecords []CountryRecord

// Contains reports whether a record with code is present.
func (cs CountryRecords) Contains(code string) bool {
	for _, c := range cs {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Without returns a copy of cs with every record matching code removed.
func (cs CountryRecords) Without(code string) CountryRecords {
	out := make(CountryRecords, 0, len(cs))
	for _, c := range cs {
		if c.Code != code {
			out = append(out, c)
		}
	}
	return out
}

// Add appends rec unless its code is already present.
func (cs CountryRecords) Add(rec CountryRecord) (CountryRecords, bool) {
	if cs.Contains(rec.Code) {
		return cs, false
	}
	return append(cs, rec), true
}
