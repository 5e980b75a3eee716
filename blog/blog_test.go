package blog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want Tags
	}{
		{"nil", nil, Tags{}},
		{"json text", `["a","b","c"]`, Tags{"a", "b", "c"}},
		{"json bytes", []byte(`["x"]`), Tags{"x"}},
		{"empty text", "", Tags{}},
		{"json null", "null", Tags{}},
		{"string slice", []string{"a", "b"}, Tags{"a", "b"}},
		{"any slice", []any{"a", "b"}, Tags{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTags(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := NormalizeTags(`not json`)
	assert.Error(t, err)
	_, err = NormalizeTags([]any{"a", 1})
	assert.Error(t, err)
	_, err = NormalizeTags(42)
	assert.Error(t, err)
}

func TestTagsJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Tags Tags `json:"tags"`
	}{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tags":[]}`, string(b))

	var in Input
	require.NoError(t, json.Unmarshal([]byte(`{"tags":["a","b"]}`), &in))
	assert.Equal(t, Tags{"a", "b"}, in.Tags)

	// Some clients send the column already serialised.
	require.NoError(t, json.Unmarshal([]byte(`{"tags":"[\"go\",\"sql\"]"}`), &in))
	assert.Equal(t, Tags{"go", "sql"}, in.Tags)

	assert.Error(t, json.Unmarshal([]byte(`{"tags":{"a":1}}`), &in))
}

func TestTagsValue(t *testing.T) {
	v, err := Tags(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = Tags{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", d.String())

	d, err = ParseDate("2024-03-01T23:30:00+05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d.String())

	_, err = ParseDate("03/01/2024")
	assert.Error(t, err)

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01"`, string(b))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2024-05-06"))
	assert.Equal(t, "2024-05-06", d.String())

	loc := time.FixedZone("east", 10*3600)
	require.NoError(t, d.Scan(time.Date(2024, 5, 7, 0, 0, 0, 0, loc)))
	assert.Equal(t, "2024-05-07", d.String())
}

func TestValidateDefaults(t *testing.T) {
	empty := "  "
	rec, err := Input{
		Slug: " s ", Title: "T", Excerpt: "E", Content: "C", AuthorName: "A", AuthorRole: "R",
		Category: "Cat", ReadTime: "1 min", PublishedAt: "2024-01-01", CoverImage: &empty,
	}.validate()
	require.NoError(t, err)
	assert.Equal(t, "s", rec.Slug)
	assert.Equal(t, StatusDraft, rec.Status)
	assert.Equal(t, Tags{}, rec.Tags)
	assert.Nil(t, rec.CoverImage)
	assert.Equal(t, "2024-01-01", rec.publishedAt.String())
}
