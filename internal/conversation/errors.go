// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"errors"
	"fmt"

	"github.com/jeranaias/chatstore/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failed")

	// ErrReplyInProgress is returned when a reply is already being generated
	// for the conversation.
	ErrReplyInProgress = errors.New("reply already in progress")

	// ErrInvalidRole is returned for a role other than user or assistant, or
	// when an operation needs a message of a different role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidBucket is returned for a bucket other than active or archived.
	ErrInvalidBucket = errors.New("invalid bucket")
)

// Kinds of missing entities reported by NotFoundError.
const (
	KindConversation = "conversation"
	KindMessage      = "message"
)

// NotFoundError reports an ID absent from the bucket an operation expected.
// Present is set when the conversation exists in the other bucket.
type NotFoundError struct {
	Kind    string
	ID      string
	Bucket  model.Bucket
	Present model.Bucket
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	switch {
	case e.Present != "":
		return fmt.Sprintf("%s %s not found in %s (it is %s)", e.Kind, e.ID, e.Bucket, e.Present)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s not found in %s", e.Kind, e.ID, e.Bucket)
	}
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is implements errors.Is support for ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func conversationNotFound(id string, bucket model.Bucket) error {
	return &NotFoundError{Kind: KindConversation, ID: id, Bucket: bucket}
}

func messageNotFound(id string) error {
	return &NotFoundError{Kind: KindMessage, ID: id}
}

// PersistenceError reports a failed write-through. The in-memory state
// already reflects the operation; call Store.Flush to retry the write.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist after %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying repository error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support for ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
