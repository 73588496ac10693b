package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountryRecord_UnmarshalAcceptsBothForms(t *testing.T) {
	raw := `[{"code":"RU","name":"Russia"}, "{\"code\":\"CN\",\"name\":\"China\"}"]`
	var got CountryRecords
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, CountryRecords{{Code: "RU", Name: "Russia"}, {Code: "CN", Name: "China"}}, got)
}

func TestCountryRecord_UnmarshalRejectsMissingCode(t *testing.T) {
	var rec CountryRecord
	assert.Error(t, json.Unmarshal([]byte(`{"name":"Nowhere"}`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`"not json"`), &rec))
	assert.Error(t, json.Unmarshal([]byte(`42`), &rec))
}

func TestCountryRecord_MarshalIsStructured(t *testing.T) {
	b, err := json.Marshal(CountryRecords{{Code: "US", Name: "United States"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"code":"US","name":"United States"}]`, string(b))
}

func TestCountryRecord_Stringified(t *testing.T) {
	rec := CountryRecord{Code: "RU", Name: "Russia"}
	s := rec.Stringified()
	assert.JSONEq(t, `{"code":"RU","name":"Russia"}`, s)

	var back CountryRecord
	quoted, _ := json.Marshal(s)
	require.NoError(t, json.Unmarshal(quoted, &back))
	assert.Equal(t, rec, back)
}

func TestCountryRecords_EqualityByCode(t *testing.T) {
	cs := CountryRecords{{Code: "RU", Name: "Russia"}, {Code: "CN", Name: "China"}}

	assert.True(t, cs.Contains("RU"))
	assert.False(t, cs.Contains("US"))

	// same code, different display name: not added
	same, added := cs.Add(CountryRecord{Code: "RU", Name: "Russian Federation"})
	assert.False(t, added)
	assert.Len(t, same, 2)

	without := cs.Without("RU")
	assert.Equal(t, CountryRecords{{Code: "CN", Name: "China"}}, without)
	assert.Len(t, cs, 2, "Without must not mutate the receiver")
}
