package models

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID_MonotonicWithinProcess(t *testing.T) {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = NewULID().String()
	}
	assert.True(t, sort.StringsAreSorted(ids), "IDs minted in sequence should sort in mint order")

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate ID %s", id)
		seen[id] = true
	}
}

func TestParseULID(t *testing.T) {
	id := NewULID()
	s := id.String()
	require.Len(t, s, 26)

	parsed, err := ParseULID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	for _, bad := range []string{"", "not-a-valid-ulid", "0000"} {
		_, err := ParseULID(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestULID_IsZero(t *testing.T) {
	var zero ULID
	assert.True(t, zero.IsZero())
	assert.False(t, NewULID().IsZero())
}

func TestULID_DriverRoundTrip(t *testing.T) {
	id := NewULID()

	val, err := id.Value()
	require.NoError(t, err)
	require.Equal(t, id.String(), val)

	var scanned ULID
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, id, scanned)
}

func TestULID_Value_ZeroStoresNull(t *testing.T) {
	var zero ULID
	val, err := zero.Value()
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestULID_Scan(t *testing.T) {
	id := NewULID()

	tests := []struct {
		name    string
		input   any
		want    ULID
		wantErr bool
	}{
		{name: "nil column", input: nil, want: ULID{}},
		{name: "text column", input: id.String(), want: id},
		{name: "blob column", input: []byte(id.String()), want: id},
		{name: "empty text", input: "", want: ULID{}},
		{name: "empty blob", input: []byte{}, want: ULID{}},
		{name: "garbage text", input: "bad-ulid", wantErr: true},
		{name: "garbage blob", input: []byte("bad-ulid"), wantErr: true},
		{name: "integer column", input: 12345, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var u ULID
			err := u.Scan(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, u)
		})
	}
}

func TestULID_JSON(t *testing.T) {
	type doc struct {
		ID ULID `json:"id"`
	}

	t.Run("set ID round-trips as a string", func(t *testing.T) {
		in := doc{ID: NewULID()}
		data, err := json.Marshal(in)
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"`+in.ID.String()+`"}`, string(data))

		var out doc
		require.NoError(t, json.Unmarshal(data, &out))
		assert.Equal(t, in.ID, out.ID)
	})

	t.Run("zero ID marshals as null and back", func(t *testing.T) {
		data, err := json.Marshal(doc{})
		require.NoError(t, err)
		assert.Equal(t, `{"id":null}`, string(data))

		var out doc
		require.NoError(t, json.Unmarshal(data, &out))
		assert.True(t, out.ID.IsZero())
	})

	t.Run("empty string decodes as zero", func(t *testing.T) {
		var out doc
		require.NoError(t, json.Unmarshal([]byte(`{"id":""}`), &out))
		assert.True(t, out.ID.IsZero())
	})

	t.Run("rejects non-string values", func(t *testing.T) {
		var u ULID
		assert.Error(t, json.Unmarshal([]byte(`12345`), &u))
	})

	t.Run("rejects malformed ULIDs", func(t *testing.T) {
		var u ULID
		assert.Error(t, json.Unmarshal([]byte(`"not-a-ulid"`), &u))
	})
}

func TestBaseModel_BeforeCreate(t *testing.T) {
	m := &BaseModel{}
	require.NoError(t, m.BeforeCreate(nil))
	assert.False(t, m.ID.IsZero(), "hook should mint an ID for new rows")

	keep := m.ID
	require.NoError(t, m.BeforeCreate(nil))
	assert.Equal(t, keep, m.ID, "hook must not replace an ID the caller chose")
}
