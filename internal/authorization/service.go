package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether an actor may perform action on object.
//
// Actors are "system", "scheduler", "operator:<name>" and "api_key:<key_id>".
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}
