package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ychleo102615/hanahuda-sub006/pkg/hanafuda"
)

// ErrorCode is the wire-level error taxonomy.
type ErrorCode string

const (
	CodeInvalidInput            ErrorCode = "INVALID_INPUT"
	CodeValidationError         ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized            ErrorCode = "UNAUTHORIZED"
	CodeWrongPlayer             ErrorCode = "WRONG_PLAYER"
	CodeGameNotFound            ErrorCode = "GAME_NOT_FOUND"
	CodePlayerNotInGame         ErrorCode = "PLAYER_NOT_IN_GAME"
	CodeGameExpired             ErrorCode = "GAME_EXPIRED"
	CodeGameAlreadyFinished     ErrorCode = "GAME_ALREADY_FINISHED"
	CodeInvalidState            ErrorCode = "INVALID_STATE"
	CodeInvalidSelection        ErrorCode = "INVALID_SELECTION"
	CodeConfirmationNotRequired ErrorCode = "CONFIRMATION_NOT_REQUIRED"
	CodeInternalError           ErrorCode = "INTERNAL_ERROR"
)

// GameError carries a taxonomy code through the use-case layer so the
// HTTP boundary can translate it without string matching.
type GameError struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *GameError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GameError) Unwrap() error { return e.cause }

// NewGameError builds a typed error.
func NewGameError(code ErrorCode, message string) *GameError {
	return &GameError{Code: code, Message: message}
}

func wrapGameError(code ErrorCode, message string, cause error) *GameError {
	return &GameError{Code: code, Message: message, cause: cause}
}

// ErrCode extracts the taxonomy code, defaulting to INTERNAL_ERROR.
func ErrCode(err error) ErrorCode {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternalError
}

// HTTPStatus maps a taxonomy code onto its status code.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidInput, CodeValidationError:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeGameNotFound, CodePlayerNotInGame:
		return http.StatusNotFound
	case CodeWrongPlayer, CodeGameAlreadyFinished, CodeInvalidState,
		CodeInvalidSelection, CodeConfirmationNotRequired:
		return http.StatusConflict
	case CodeGameExpired:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}

// fromDomainErr translates the engine's sentinel errors into the
// taxonomy.
func fromDomainErr(err error) *GameError {
	switch {
	case errors.Is(err, hanafuda.ErrWrongPlayer):
		return wrapGameError(CodeWrongPlayer, "it is not your turn", err)
	case errors.Is(err, hanafuda.ErrWrongState), errors.Is(err, hanafuda.ErrRoundOver):
		return wrapGameError(CodeInvalidState, "operation not valid in the current state", err)
	case errors.Is(err, hanafuda.ErrCardNotInHand):
		return wrapGameError(CodeInvalidInput, "card is not in your hand", err)
	case errors.Is(err, hanafuda.ErrInvalidTarget):
		return wrapGameError(CodeInvalidSelection, "target is not selectable", err)
	}
	return wrapGameError(CodeInternalError, "unexpected engine failure", err)
}
