package main

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrBotNotFound             = errors.New("bot_not_found")
	ErrBotExpired              = errors.New("bot_expired")
	ErrBotInactive             = errors.New("bot_inactive")
	ErrTrialLimitReached       = errors.New("trial_limit_reached")
	ErrWebChannelDisabled      = errors.New("web_channel_disabled")
	ErrAppChannelDisabled      = errors.New("app_channel_disabled")
	ErrInvalidCorrelationToken = errors.New("invalid_correlation_token")
	ErrPlatformSendFailed      = errors.New("platform_send_failed")
	ErrStorage                 = errors.New("storage_error")

	ErrBotAlreadyExists = errors.New("bot_already_created")
	ErrCodeInvalid      = errors.New("activation_code_invalid")
	ErrForbidden        = errors.New("forbidden")
	ErrAccountDisabled  = errors.New("account_disabled")
	ErrEmptyMessage     = errors.New("empty_message")
	ErrIncorrectToken   = errors.New("incorrect_token")
	ErrWebhookFailed    = errors.New("error_creating_webhook")
)

// SendError carries the platform's error description verbatim
type SendError struct {
	Code        int
	Description string
}

func (e *SendError) Error() string {
	return e.Description
}

// Is lets errors.Is match SendError against ErrPlatformSendFailed
func (e *SendError) Is(target error) bool {
	return target == ErrPlatformSendFailed
}

func storageError(err error, msg string) error {
	if err == nil {
		return nil
	}

	return errors.Wrap(storageFailure{err}, msg)
}

type storageFailure struct {
	err error
}

func (e storageFailure) Error() string        { return e.err.Error() }
func (e storageFailure) Unwrap() error        { return e.err }
func (e storageFailure) Is(target error) bool { return target == ErrStorage }

// errorStatus maps a relay error to its HTTP status and translation key.
// Unclassified errors return 0.
func errorStatus(err error) (int, string) {
	var sendErr *SendError

	switch {
	case errors.As(err, &sendErr):
		return http.StatusBadGateway, ""
	case errors.Is(err, ErrBotNotFound):
		return http.StatusNotFound, ErrBotNotFound.Error()
	case errors.Is(err, ErrBotExpired),
		errors.Is(err, ErrBotInactive),
		errors.Is(err, ErrTrialLimitReached),
		errors.Is(err, ErrWebChannelDisabled),
		errors.Is(err, ErrAppChannelDisabled),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrAccountDisabled):
		return http.StatusForbidden, errors.Cause(err).Error()
	case errors.Is(err, ErrBotAlreadyExists),
		errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrIncorrectToken),
		errors.Is(err, ErrWebhookFailed):
		return http.StatusBadRequest, errors.Cause(err).Error()
	}

	return 0, ""
}
