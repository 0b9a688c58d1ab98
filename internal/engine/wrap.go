package engine

import "fmt"

// wrapf builds an error whose message is the formatted string followed by
// sentinel's text, such that errors.Is(result, sentinel) holds.
func wrapf(sentinel error, format string, args ...any) error {
	all := make([]any, 0, len(args)+1)
	all = append(all, args...)
	all = append(all, sentinel)
	return fmt.Errorf(format+": %w", all...)
}
