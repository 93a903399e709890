package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidAction marks callback payloads that do not decode into an Action.
var ErrInvalidAction = errors.New("invalid action")

// ActionKind enumerates the operator buttons attached to articles.
type ActionKind string

const (
	ActionApprove  ActionKind = "approve"
	ActionReject   ActionKind = "reject"
	ActionOriginal ActionKind = "original"
	ActionPublish  ActionKind = "publish"
	ActionCancel   ActionKind = "cancel"
)

func (k ActionKind) valid() bool {
	switch k {
	case ActionApprove, ActionReject, ActionOriginal, ActionPublish, ActionCancel:
		return true
	}
	return false
}

// Action is a decoded inline-button payload of the form "{kind}_{articleID}".
type Action struct {
	Kind      ActionKind
	ArticleID int64
}

// ParseAction decodes callback data once at the chat boundary.
func ParseAction(data string) (Action, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(data), "_")
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, data)
	}

	action := Action{Kind: ActionKind(kind)}
	if !action.Kind.valid() {
		return Action{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, kind)
	}

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return Action{}, fmt.Errorf("%w: bad article id %q", ErrInvalidAction, rawID)
	}
	action.ArticleID = id

	return action, nil
}

// String encodes the action back into callback data.
func (a Action) String() string {
	return fmt.Sprintf("%s_%d", a.Kind, a.ArticleID)
}
