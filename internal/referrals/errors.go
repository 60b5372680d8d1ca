package referrals

import "errors"

var (
	// ErrNotFound means the document does not exist or belongs to another
	// practice.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidInput covers bad MIME type, oversize uploads, and malformed
	// requests.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDeleteApplied means a delete was attempted on an applied document.
	ErrDeleteApplied = errors.New("applied documents cannot be deleted")
	// ErrLockNotAcquired is a no-op signal: another request is already
	// processing this phase. It is not an error condition for the caller.
	ErrLockNotAcquired = errors.New("extraction already in progress")
	// ErrNoData means a pipeline was started on a document without content
	// text.
	ErrNoData = errors.New("document has no content text")
)
