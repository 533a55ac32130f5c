// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDOI(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://doi.org/10.1145/3442188.3445922", "10.1145/3442188.3445922", true},
		{"http://dx.doi.org/10.1145/3442188.3445922", "10.1145/3442188.3445922", true},
		{"DOI:10.1000/XYZ123", "10.1000/xyz123", true},
		{"  10.1145/3442188.3445922  ", "10.1145/3442188.3445922", true},
		{"not-a-doi", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := DOI(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}

func TestDOINormalizationIsIdempotent(t *testing.T) {
	d, ok := DOI("https://doi.org/10.1145/3442188.3445922")
	assert.True(t, ok)
	d2, ok := DOI(d)
	assert.True(t, ok)
	assert.Equal(t, d, d2)
}

func TestArxivID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"arXiv:2301.07041", "2301.07041"},
		{"2301.07041v2", "2301.07041"},
		{"1706.03762v1", "1706.03762"},
		{"1706.03762v5", "1706.03762"},
		{"hep-th/9901001", "hep-th/9901001"},
	}
	for _, c := range cases {
		got, ok := ArxivID(c.in)
		assert.True(t, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestArxivIDNormalizationIsIdempotent(t *testing.T) {
	a, ok := ArxivID("arXiv:1706.03762v5")
	assert.True(t, ok)
	a2, ok := ArxivID(a)
	assert.True(t, ok)
	assert.Equal(t, a, a2)
}

func TestTitleHashDeterministic(t *testing.T) {
	h1 := TitleHash("Deep Learning for Image Classification.")
	h2 := TitleHash("deep learning for image classification")
	assert.Equal(t, h1, h2)
}

func TestPaperIDPrefersDOIThenArxiv(t *testing.T) {
	id := PaperID("10.1145/xyz", "2301.07041", "Some Title", 2020, "Smith")
	assert.Equal(t, "doi:10.1145/xyz", id)

	id = PaperID("", "2301.07041", "Some Title", 2020, "Smith")
	assert.Equal(t, "arxiv:2301.07041", id)

	id = PaperID("", "", "Some Title", 2020, "Smith")
	assert.Contains(t, id, "title:")
	assert.Contains(t, id, "2020")
	assert.Contains(t, id, "smith")
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in   string
		year int
		ok   bool
	}{
		{"2020-03-15", 2020, true},
		{"2020/03/15", 2020, true},
		{"15-03-2020", 2020, true},
		{"15/03/2020", 2020, true},
		{"2020-03", 2020, true},
		{"2020", 2020, true},
		{"not a date", 0, false},
		{"2020.03.15", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseDate(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.year, got.Year(), c.in)
		}
	}
}
