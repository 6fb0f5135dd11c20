package namematch

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"jane   doe":          "jane doe",
		"  Jane Doe  ":        "jane doe",
		"O'Brien, Mary-Kate":  "obrien marykate",
		"Ravi\tKumar\nSingh":  "ravi kumar singh",
		"ÉLODIE Martin":       "lodie martin",
		"Student 42 (Guest)":  "student 42 guest",
		"":                    "",
		"!!!":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	prop := func(s string) bool {
		once := Normalize(s)
		return Normalize(once) == once
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 2000}))
}

func TestStripBatchCode(t *testing.T) {
	assert.Equal(t, "Jane Doe", StripBatchCode("Jane Doe BCR69", "BCR69"))
	assert.Equal(t, "Jane Doe", StripBatchCode("Jane Doe bcr69  ", "BCR69"))
	assert.Equal(t, "BCR69 Jane Doe", StripBatchCode("BCR69 Jane Doe", "BCR69"))
	assert.Equal(t, "Jane DoeBCR69", StripBatchCode("Jane DoeBCR69", "BCR69"))
	assert.Equal(t, "Jane Doe", StripBatchCode("Jane Doe", ""))
	assert.Equal(t, "Jane", StripBatchCode("Jane A.B+", "A.B+"))
}

func TestCompareExact(t *testing.T) {
	s := Compare("jane   doe", "Jane Doe")
	assert.Equal(t, MatchExact, s.Type)
	assert.Equal(t, 1.0, s.Confidence)
}

func TestCompareFirstName(t *testing.T) {
	s := Compare("Jane", "Jane Doe")
	assert.Equal(t, MatchFirstName, s.Type)
	assert.Equal(t, 0.9, s.Confidence)

	// two-letter first names are too weak to count
	s = Compare("Al Smith", "Al Jones")
	assert.NotEqual(t, MatchFirstName, s.Type)
}

func TestComparePartial(t *testing.T) {
	s := Compare("Doe Jane", "Jane Doe")
	assert.Equal(t, MatchPartial, s.Type)
	assert.Equal(t, 0.8, s.Confidence)

	s = Compare("Jon", "Jonathan Smith")
	assert.Equal(t, MatchPartial, s.Type)
}

func TestCompareFuzzy(t *testing.T) {
	s := Compare("Jon Doe", "Jane Doe")
	assert.Equal(t, MatchFuzzy, s.Type)
	assert.InDelta(t, 0.75, s.Confidence, 1e-9)
}

func TestCompareNoMatch(t *testing.T) {
	s := Compare("Priya Raman", "Kevin Brooks")
	assert.False(t, s.Matched())
	assert.Zero(t, s.Confidence)

	assert.False(t, Compare("", "").Matched())
	assert.False(t, Compare("???", "Jane").Matched())
}

func TestDistanceAndSimilarity(t *testing.T) {
	assert.Equal(t, 3, Distance("kitten", "sitting"))
	assert.Equal(t, 0, Distance("same", "same"))
	assert.Equal(t, 4, Distance("", "abcd"))
	assert.Equal(t, 0.0, Similarity("", ""))
	assert.InDelta(t, 1-3.0/7.0, Similarity("kitten", "sitting"), 1e-9)
}
