// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olegiv/pillar-engine/internal/model"
)

// Error classes. Every error returned by the engine matches exactly one of
// these through errors.Is, or is a context error.
var (
	// ErrGenerationParse means the generated text did not have the expected
	// structure. The operation may be retried.
	ErrGenerationParse = errors.New("generation output could not be parsed")
	// ErrGenerationFailed means the text-generation call itself failed.
	ErrGenerationFailed = errors.New("text generation failed")
	// ErrInvalidStrategyState means the strategy's lifecycle state does not
	// allow the requested operation.
	ErrInvalidStrategyState = errors.New("invalid strategy state")
	// ErrBuildAlreadyInProgress means the strategy already has an active build.
	ErrBuildAlreadyInProgress = errors.New("build already in progress")
	// ErrStaleContent means live content diverged from a build snapshot.
	ErrStaleContent = errors.New("stale content")
	// ErrRepositoryUnavailable marks transient storage failures.
	ErrRepositoryUnavailable = errors.New("repository unavailable")
	// ErrValidation marks invalid caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound means a referenced strategy or build does not exist.
	ErrNotFound = model.ErrNotFound
	// ErrPartialCommit means an approval left some documents written and
	// could not revert them.
	ErrPartialCommit = errors.New("partial commit")
)

// GenerationParseError describes unparseable text-generation output.
type GenerationParseError struct {
	// Stage is the generation step: "strategies" or "pillar".
	Stage   string
	Excerpt string
	Err     error
}

func (e *GenerationParseError) Error() string {
	return fmt.Sprintf("parsing %s output: %v", e.Stage, e.Err)
}

func (e *GenerationParseError) Unwrap() error { return e.Err }

// Is matches ErrGenerationParse.
func (e *GenerationParseError) Is(target error) bool { return target == ErrGenerationParse }

// Retryable reports that the caller may try again.
func (e *GenerationParseError) Retryable() bool { return true }

// StateError reports an operation refused by the strategy lifecycle.
type StateError struct {
	StrategyID string
	Status     model.StrategyStatus
	Operation  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s strategy %s in status %q", e.Operation, e.StrategyID, e.Status)
}

// Is matches ErrInvalidStrategyState.
func (e *StateError) Is(target error) bool { return target == ErrInvalidStrategyState }

// Conflict names one document whose live content no longer matches its snapshot.
type Conflict struct {
	Ref    model.DocumentRef `json:"ref"`
	Title  string            `json:"title"`
	Reason string            `json:"reason"`
}

// StaleContentError aborts an approval batch. It lists every conflicting document.
type StaleContentError struct {
	Conflicts []Conflict
}

func (e *StaleContentError) Error() string {
	refs := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		refs = append(refs, c.Ref.String())
	}
	return fmt.Sprintf("stale content in %d document(s): %s", len(e.Conflicts), strings.Join(refs, ", "))
}

// Is matches ErrStaleContent.
func (e *StaleContentError) Is(target error) bool { return target == ErrStaleContent }

// PartialCommitError reports documents left written after a failed approval.
type PartialCommitError struct {
	Written []model.DocumentRef
	Err     error
}

func (e *PartialCommitError) Error() string {
	refs := make([]string, 0, len(e.Written))
	for _, r := range e.Written {
		refs = append(refs, r.String())
	}
	return fmt.Sprintf("approval partially applied (%s): %v", strings.Join(refs, ", "), e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }

// Is matches ErrPartialCommit.
func (e *PartialCommitError) Is(target error) bool { return target == ErrPartialCommit }

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// repoError classifies a repository failure. Context errors and not-found
// keep their identity; anything else is tagged ErrRepositoryUnavailable.
func repoError(op string, err error) error {
	if isContextErr(err) || errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrRepositoryUnavailable, err))
}

// generationError classifies a text-generation failure.
func generationError(op string, err error) error {
	if isContextErr(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, errors.Join(ErrGenerationFailed, err))
}
