package network

import "fmt"

// DataLoadError marks a failed load attempt. The previous good snapshot keeps
// serving; callers decide whether to retry.
type DataLoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data load failed (%s): %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("data load failed (%s): %s", e.Source, e.Reason)
}

func (e *DataLoadError) Unwrap() error { return e.Err }

func loadErr(source, reason string, err error) error {
	return &DataLoadError{Source: source, Reason: reason, Err: err}
}
