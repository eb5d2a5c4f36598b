// Package bird is a client for the iOS bird automation backend. It talks to
// the backend over one persistent websocket, mirrors contacts, rooms and room
// members into local badger databases and exposes call level operations on
// top of a protocol that has no general correlation id.
package bird

import (
	"errors"
	"fmt"
)

// General bird error. Base of all other bird errors
var Error = errors.New("bird")

var ErrorInvalidArgument = fmt.Errorf("%w: invalid argument", Error)
var ErrorNotConnected = fmt.Errorf("%w: not connected", Error)
var ErrorClosed = fmt.Errorf("%w: connection closed", Error)
var ErrorTimeout = fmt.Errorf("%w: timeout", Error)
var ErrorRemoteDown = fmt.Errorf("%w: remote backend not responsive", Error)
var ErrorInvalidFrame = fmt.Errorf("%w: invalid frame", Error)
var ErrorNotFound = fmt.Errorf("%w: not found", Error)
var ErrorCacheUninitialized = fmt.Errorf("%w: cache not initialized", Error)
var ErrorCacheAlreadyExists = fmt.Errorf("%w: cache already exists", Error)

// RemoteRejected is returned when the backend answers a call with a failure status.
type RemoteRejected struct {
	Action  Action
	Status  int
	Message string
}

func (r RemoteRejected) Error() string {
	return fmt.Sprintf("%s: remote rejected %s: status %d: %s", Error, r.Action, r.Status, r.Message)
}

func (r RemoteRejected) Unwrap() error {
	return Error
}

// Result carries the outcome of an asynchronous operation.
type Result[T any] struct {
	Ok  T
	Err error
}

func NewResult[T any](ok T, err error) Result[T] {
	return Result[T]{Ok: ok, Err: err}
}

func Ok[T any](t T) Result[T] {
	return Result[T]{Ok: t}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Err: err}
}
