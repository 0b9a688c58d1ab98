// Package protocol implements ZenithDB's line-oriented text wire format
// (spec §6): parsing one request line into a Command, and formatting an
// engine result into one response line. It is an external collaborator to
// the storage engine, not part of the core (spec §1) — it never touches a
// WAL, MemTable, or SSTable directly.
package protocol

import (
	"fmt"
	"strings"
)

// CommandType names one of the four supported request verbs.
type CommandType string

const (
	Set     CommandType = "SET"
	Get     CommandType = "GET"
	Delete  CommandType = "DELETE"
	Compact CommandType = "COMPACT"
)

// Command is one parsed request line.
type Command struct {
	Type  CommandType
	Key   string
	Value string
}

// ErrInvalidCommand is returned for anything that isn't one of the four
// exact request shapes in spec §6 — unknown verb, wrong arity, or an empty
// line.
var ErrInvalidCommand = fmt.Errorf("Invalid command format")

// Parse splits line on ASCII whitespace and matches it against the four
// request shapes in spec §6. Keys and values are whitespace-free tokens;
// each command requires exactly the arity shown in the table, no more and
// no less.
func Parse(line string) (Command, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\v', '\f', '\r':
			return true
		}
		return false
	})
	if len(fields) == 0 {
		return Command{}, ErrInvalidCommand
	}

	switch strings.ToUpper(fields[0]) {
	case string(Set):
		if len(fields) != 3 {
			return Command{}, ErrInvalidCommand
		}
		return Command{Type: Set, Key: fields[1], Value: fields[2]}, nil

	case string(Get):
		if len(fields) != 2 {
			return Command{}, ErrInvalidCommand
		}
		return Command{Type: Get, Key: fields[1]}, nil

	case string(Delete):
		if len(fields) != 2 {
			return Command{}, ErrInvalidCommand
		}
		return Command{Type: Delete, Key: fields[1]}, nil

	case string(Compact):
		if len(fields) != 1 {
			return Command{}, ErrInvalidCommand
		}
		return Command{Type: Compact}, nil

	default:
		return Command{}, ErrInvalidCommand
	}
}

// FormatOK renders the success response shared by SET, DELETE, and COMPACT.
func FormatOK() string { return "OK" }

// FormatValue renders a GET hit.
func FormatValue(value string) string { return value }

// FormatNull renders a GET miss.
func FormatNull() string { return "NULL" }

// FormatError renders any failure, including a parse failure.
func FormatError(err error) string {
	return "ERROR: " + err.Error()
}
