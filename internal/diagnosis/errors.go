package diagnosis

import "fmt"

// ValidationError means the submitted image was rejected before any side
// effect happened. Safe to retry with a different file.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// UploadError means the blob store was unreachable or rejected the image. No
// record exists for the run.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading image: %v", e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// PersistenceError means the diagnosis record could not be written after a
// successful inference. The result is still delivered to the caller.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persisting diagnosis record: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
