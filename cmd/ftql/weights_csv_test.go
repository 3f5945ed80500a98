package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRelatives(t *testing.T) {
	input := "BONK-SOL, WIF-SOL ,USDC\n1.02,0.98,1\n0.99, 1.05,1\n"

	columns, rows, err := readRelatives(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"BONK-SOL", "WIF-SOL", "USDC"}, columns)
	assert.Equal(t, [][]float64{{1.02, 0.98, 1}, {0.99, 1.05, 1}}, rows)
}

func TestReadRelatives_HeaderOnly(t *testing.T) {
	columns, rows, err := readRelatives(strings.NewReader("A,B\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, columns)
	assert.Empty(t, rows)
}

func TestReadRelatives_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "empty"},
		{"ragged row", "A,B\n1,2\n1\n", "line 3"},
		{"not a number", "A,B\n1,x\n", "line 2 column B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readRelatives(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteWeights(t *testing.T) {
	var buf bytes.Buffer
	err := writeWeights(&buf, []string{"A", "B"}, [][]float64{{0.5, 0.5}, {0.25, 0.75}})
	require.NoError(t, err)
	assert.Equal(t, "A,B\n0.5,0.5\n0.25,0.75\n", buf.String())
}
