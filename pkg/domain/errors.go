package domain

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound     = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrForbidden         = NewErr("FORBIDDEN", "you are not allowed to access this paste", http.StatusForbidden)
	ErrPasteExpired      = NewErr("PASTE_EXPIRED", "paste is expired", http.StatusGone)
	ErrPasswordRequired  = NewErr("PASSWORD_REQUIRED", "password required", http.StatusUnauthorized)
	ErrPasswordMismatch  = NewErr("PASSWORD_MISMATCH", "invalid password", http.StatusUnauthorized)
	ErrDailyLimitReached = NewErr("DAILY_LIMIT_REACHED", "daily paste limit reached", http.StatusTooManyRequests)
	ErrTooSoon           = NewErr("TOO_SOON", "please wait before making another paste", http.StatusTooManyRequests)
	ErrFeatureDisabled   = NewErr("FEATURE_DISABLED", "this feature is disabled", http.StatusForbidden)
	ErrValidationFailed  = NewErr("VALIDATION_FAILED", "validation failed", http.StatusBadRequest)
	ErrContentTooLarge   = NewErr("CONTENT_TOO_LARGE", "content exceeds the allowed size", http.StatusBadRequest)
	ErrInvalidExpiry     = NewErr("INVALID_EXPIRY", "invalid expire code", http.StatusBadRequest)
	ErrInvalidStatus     = NewErr("INVALID_STATUS", "status not allowed", http.StatusBadRequest)
	ErrStorageMissing    = NewErr("STORAGE_MISSING", "paste content is no longer available", http.StatusGone)
	ErrRateLimited       = NewErr("RATE_LIMITED", "too many requests", http.StatusTooManyRequests)
	ErrInvalidRequest    = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrInternal          = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string         `json:"code"`
	Msg    string         `json:"message"`
	Status int            `json:"-"`
	Meta   map[string]any `json:"meta,omitempty"`
}

func (e *Err) Error() string { return e.Msg }

// Is matches by code so derived errors (TooSoonErr, ValidationErr)
// satisfy errors.Is against their sentinel.
func (e *Err) Is(target error) bool {
	t, ok := target.(*Err)
	return ok && t.Code == e.Code
}

func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// TooSoonErr carries the seconds remaining until the identity may
// paste again.
func TooSoonErr(seconds int) *Err {
	return &Err{
		Code:   ErrTooSoon.Code,
		Msg:    fmt.Sprintf("please wait %d seconds before making another paste", seconds),
		Status: ErrTooSoon.Status,
		Meta:   map[string]any{"retry_after_seconds": seconds},
	}
}

func ValidationErr(fields map[string]string) *Err {
	meta := make(map[string]any, len(fields))
	for k, v := range fields {
		meta[k] = v
	}
	return &Err{
		Code:   ErrValidationFailed.Code,
		Msg:    ErrValidationFailed.Msg,
		Status: ErrValidationFailed.Status,
		Meta:   meta,
	}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}

type ErrDetail struct {
	Code string         `json:"code"`
	Msg  string         `json:"message"`
	Meta map[string]any `json:"meta,omitempty"`
}

func ToResp(err error) ErrResp {
	if e := asErr(err); e != nil {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg, Meta: e.Meta}}
	}
	return ErrResp{Error: ErrDetail{Code: ErrInternal.Code, Msg: ErrInternal.Msg}}
}

func StatusCode(err error) int {
	if e := asErr(err); e != nil {
		return e.Status
	}
	return http.StatusInternalServerError
}

func asErr(err error) *Err {
	if e, ok := err.(*Err); ok {
		return e
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e
	}
	var e *Err
	if errors.As(err, &e) {
		return e
	}
	return nil
}
