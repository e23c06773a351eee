package civ

import (
	"errors"
	"fmt"
)

// ErrInvariant is matched by every InvariantError. An invariant violation means
// the engine reached a state the rules can never produce; callers must stop the
// game rather than continue on corrupted state.
var ErrInvariant = errors.New("civ: invariant violated")

// ErrIllegalTransition is returned when AdvanceTo is asked for an activity that
// does not follow the current one.
var ErrIllegalTransition = errors.New("civ: illegal activity transition")

// InvariantError describes an unreachable engine state.
type InvariantError struct {
	Op     string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Op, e.Detail)
}

// Is reports whether target is ErrInvariant.
func (e *InvariantError) Is(target error) bool {
	return target == ErrInvariant
}

func invariantf(op, format string, args ...any) error {
	return &InvariantError{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// CommandError describes why a command was rejected. The game state is left
// untouched when a command fails.
type CommandError struct {
	Command CommandType
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("invalid command %s: %s", e.Command, e.Message)
}

func rejectf(cmd CommandType, format string, args ...any) error {
	return &CommandError{Command: cmd, Message: fmt.Sprintf(format, args...)}
}
