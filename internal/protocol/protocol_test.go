package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidCommands(t *testing.T) {
	cmd, err := Parse("SET hello world")
	require.NoError(t, err)
	require.Equal(t, Command{Type: Set, Key: "hello", Value: "world"}, cmd)

	cmd, err = Parse("GET hello")
	require.NoError(t, err)
	require.Equal(t, Command{Type: Get, Key: "hello"}, cmd)

	cmd, err = Parse("DELETE hello")
	require.NoError(t, err)
	require.Equal(t, Command{Type: Delete, Key: "hello"}, cmd)

	cmd, err = Parse("COMPACT")
	require.NoError(t, err)
	require.Equal(t, Command{Type: Compact}, cmd)
}

func TestParseIsCaseInsensitiveOnVerb(t *testing.T) {
	cmd, err := Parse("set a b")
	require.NoError(t, err)
	require.Equal(t, Set, cmd.Type)
}

func TestParseRejectsWrongArity(t *testing.T) {
	cases := []string{
		"SET",
		"SET onlykey",
		"SET a b c",
		"GET",
		"GET a b",
		"DELETE",
		"DELETE a b",
		"COMPACT extra",
		"",
		"   ",
		"BOGUS a b",
	}
	for _, line := range cases {
		_, err := Parse(line)
		require.ErrorIs(t, err, ErrInvalidCommand, "line: %q", line)
	}
}

func TestFormatResponses(t *testing.T) {
	require.Equal(t, "OK", FormatOK())
	require.Equal(t, "NULL", FormatNull())
	require.Equal(t, "world", FormatValue("world"))
	require.Equal(t, "ERROR: Invalid command format", FormatError(ErrInvalidCommand))
}
