// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across backend/service layers.
var (
	// ErrAccessDenied indicates a privileged action was attempted without an admin token.
	ErrAccessDenied = errors.New("access denied")

	// ErrFileTooLarge indicates an upload above the size ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUploadFailed indicates the storage write failed.
	ErrUploadFailed = errors.New("upload failed")

	// ErrInvalidKey indicates storage rejected the object key. Always wrapped together with ErrUploadFailed.
	ErrInvalidKey = errors.New("invalid storage key")

	// ErrLinkFailed indicates the record update failed after a successful upload.
	ErrLinkFailed = errors.New("link failed")

	// ErrRemovalFailed indicates deletion of a stored object or of a record failed.
	ErrRemovalFailed = errors.New("removal failed")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates local validation rejected the request before any call.
	ErrInvalidInput = errors.New("invalid input")
)

// Message maps an error to the notification text shown to an admin.
// Unknown errors get a generic message; details belong in the logs.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccessDenied):
		return "access denied: log in as an administrator first"
	case errors.Is(err, ErrFileTooLarge):
		return "file too large: the maximum size is 5MB"
	case errors.Is(err, ErrInvalidKey):
		return "the file name was rejected by storage; names are sanitized now, please try again"
	case errors.Is(err, ErrUploadFailed):
		return "could not upload the file, please try again"
	case errors.Is(err, ErrLinkFailed):
		return "could not update the record in the database"
	case errors.Is(err, ErrRemovalFailed):
		return "could not remove the item"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrInvalidInput):
		return err.Error()
	default:
		return "unexpected error, please try again"
	}
}
