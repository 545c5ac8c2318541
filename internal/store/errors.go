package store

import (
	"errors"
	"fmt"
)

// Kind classifies store failures callers act on.
type Kind uint8

// Failure kinds.
const (
	KindNotFound Kind = iota + 1
	KindAlreadyExists
)

// Error is a store failure of a known kind. Message names the entity.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any store error of the same kind, so ErrBeaconNotFound
// satisfies errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel errors.
var (
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "resource not found"}
	ErrAlreadyExists = &Error{Kind: KindAlreadyExists, Message: "resource already exists"}
)

// Entity-specific sentinels.
var (
	ErrUserNotFound     = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrGroupNotFound    = &Error{Kind: KindNotFound, Message: "group not found"}
	ErrBeaconNotFound   = &Error{Kind: KindNotFound, Message: "beacon not found"}
	ErrLandmarkNotFound = &Error{Kind: KindNotFound, Message: "landmark not found"}
	ErrEmailExists      = &Error{Kind: KindAlreadyExists, Message: "email already in use"}
)

// IndexConflictError reports that a write would reuse a unique index key
// held by another entity.
type IndexConflictError struct {
	Index string
	Key   string
}

func (e *IndexConflictError) Error() string {
	return fmt.Sprintf("index %s conflict on key %s", e.Index, e.Key)
}

// Unwrap lets errors.Is(err, ErrAlreadyExists) match index conflicts.
func (e *IndexConflictError) Unwrap() error { return ErrAlreadyExists }

// IsIndexConflict reports whether err is a conflict on the named index.
func IsIndexConflict(err error, index string) bool {
	var conflict *IndexConflictError
	return errors.As(err, &conflict) && conflict.Index == index
}
