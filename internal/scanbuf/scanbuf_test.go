package scanbuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanlogd/internal/keycode"
)

func chars(s string) []keycode.Char {
	out := make([]keycode.Char, 0, len(s))
	for _, r := range s {
		out = append(out, keycode.Of(r))
	}
	return out
}

func TestAccept_NoTerminatorNeverFinalizes(t *testing.T) {
	b := New()
	for _, c := range chars("0123456789ab") {
		_, ok := b.Accept(c)
		require.False(t, ok)
	}
	assert.Equal(t, "0123456789ab", b.String())
	assert.Equal(t, 12, b.Len())
}

func TestAccept_TerminatorFinalizesAndClears(t *testing.T) {
	b := New()
	for _, c := range chars("012345678901") {
		b.Accept(c)
	}

	payload, ok := b.Accept(keycode.EOL)
	require.True(t, ok)
	assert.Equal(t, "012345678901", payload)
	assert.Zero(t, b.Len())

	payload, ok = b.Accept(keycode.EOL)
	require.True(t, ok)
	assert.Empty(t, payload, "consecutive terminators yield an empty payload")
}

func TestAccept_IgnoresSentinels(t *testing.T) {
	tests := []struct {
		name  string
		input []keycode.Char
	}{
		{"none", chars("1234")},
		{"unmapped between", []keycode.Char{keycode.Of('1'), keycode.None, keycode.Of('2'), keycode.None, keycode.None, keycode.Of('3'), keycode.Of('4')}},
		{"blank between", []keycode.Char{keycode.Blank, keycode.Of('1'), keycode.Of('2'), keycode.Blank, keycode.Of('3'), keycode.Of('4'), keycode.Blank}},
		{"many sentinels", append(append([]keycode.Char{keycode.None, keycode.None, keycode.Blank}, chars("12")...), append([]keycode.Char{keycode.None, keycode.Blank, keycode.None}, chars("34")...)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			for _, c := range tt.input {
				_, ok := b.Accept(c)
				require.False(t, ok)
			}
			payload, ok := b.Accept(keycode.EOL)
			require.True(t, ok)
			assert.Equal(t, "1234", payload)
		})
	}
}

func TestAccept_SentinelDoesNotReset(t *testing.T) {
	b := New()
	b.Accept(keycode.Of('9'))
	b.Accept(keycode.None)
	b.Accept(keycode.Blank)
	assert.Equal(t, "9", b.String())
}

func TestReset(t *testing.T) {
	b := New()
	for _, c := range chars("123") {
		b.Accept(c)
	}
	b.Reset()
	assert.Zero(t, b.Len())

	b.Accept(keycode.Of('4'))
	payload, ok := b.Accept(keycode.EOL)
	require.True(t, ok)
	assert.Equal(t, "4", payload)
}
