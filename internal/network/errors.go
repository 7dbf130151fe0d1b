package network

import "errors"

var (
	// ErrMissingUser indicates an empty user id.
	ErrMissingUser = errors.New("both user ids are required")
	// ErrInvalidUser indicates a user id with reserved characters.
	ErrInvalidUser = errors.New("user id contains reserved characters")
	// ErrSelfRequest indicates a user tried to connect with themselves.
	ErrSelfRequest = errors.New("cannot send a connection request to yourself")
	// ErrSelfBlock indicates a user tried to block themselves.
	ErrSelfBlock = errors.New("cannot block yourself")
	// ErrBlocked indicates a block exists between the two users.
	ErrBlocked = errors.New("connection blocked")
	// ErrRequestExists indicates a request already exists in either direction.
	ErrRequestExists = errors.New("connection request already exists")
	// ErrDailyLimit indicates the requester used up today's request quota.
	ErrDailyLimit = errors.New("daily connection request limit reached")
	// ErrForbidden indicates the actor may not act on the request.
	ErrForbidden = errors.New("only the recipient can respond to a request")
	// ErrNotPending indicates the request was already answered.
	ErrNotPending = errors.New("connection request is not pending")
	// ErrNotFound indicates an unknown request, user or block.
	ErrNotFound = errors.New("not found")
)
