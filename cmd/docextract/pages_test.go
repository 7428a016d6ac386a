package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePages(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "  ", want: nil},
		{in: "2", want: []int{2}},
		{in: "1, 3", want: []int{1, 3}},
		{in: "1,3,5-7", want: []int{1, 3, 5, 6, 7}},
		{in: "4-4", want: []int{4}},
		// range validation is the pipeline's job
		{in: "0", want: []int{0}},
		{in: "1,,2", wantErr: true},
		{in: "a", wantErr: true},
		{in: "3-1", wantErr: true},
		{in: "1-x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePages(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"process", "watch", "serve", "export", "clean"} {
		assert.True(t, names[want], want)
	}
}
