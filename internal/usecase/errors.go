package usecase

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }

type ErrUnauthorized string

func (e ErrUnauthorized) Error() string { return string(e) }

// ErrUnavailable marks transient dependency failures; callers may
// safely retry because no partial state was committed.
type ErrUnavailable string

func (e ErrUnavailable) Error() string { return string(e) }

// ErrIntegrity marks requests whose authenticity could not be
// established, e.g. a webhook with a bad signature.
type ErrIntegrity string

func (e ErrIntegrity) Error() string { return string(e) }
