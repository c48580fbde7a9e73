package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"
)

func TestEnabled(t *testing.T) {
	testCases := []struct {
		name     string
		patterns []string
		check    string
		expected bool
	}{
		{name: "family", patterns: []string{"SA*"}, check: "SA1000", expected: true},
		{name: "other family", patterns: []string{"SA*"}, check: "ST1005", expected: false},
		{name: "exact", patterns: []string{"ST1005"}, check: "ST1005", expected: true},
		{name: "exact mismatch", patterns: []string{"ST1005"}, check: "ST1000", expected: false},
		{name: "nothing", patterns: nil, check: "SA1000", expected: false},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, enabled(testCase.patterns, testCase.check))
		})
	}
}

func TestSelectAnalyzers(t *testing.T) {
	selected := selectAnalyzers([]string{"ST1005"}, staticcheck.Analyzers, stylecheck.Analyzers)
	if assert.Len(t, selected, 1) {
		assert.Equal(t, "ST1005", selected[0].Name)
	}

	assert.Len(t, selectAnalyzers([]string{"SA*"}, staticcheck.Analyzers), len(staticcheck.Analyzers))
}
