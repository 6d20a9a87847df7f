package store

import "fmt"

// WriteError is a failed write of one row, or of a whole table when Row is -1
type WriteError struct {
	Table string
	Row   int
	Key   string
	Err   error
}

func (e *WriteError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s row %d (%s): %v", e.Table, e.Row, e.Key, e.Err)
	}
	return fmt.Sprintf("%s row %d: %v", e.Table, e.Row, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
