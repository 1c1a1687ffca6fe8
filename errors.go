package hackpad

import "fmt"

// StorageError reports a failure reading or writing the local cache.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// FetchError reports a failed call to the remote API. The cache is never
// modified by an operation that returns a FetchError.
type FetchError struct {
	Op  string
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("fetching %s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports a remote response that does not have the expected shape.
type DecodeError struct {
	Field  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding response: %s: %s", e.Field, e.Reason)
}
