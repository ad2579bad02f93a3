// Package apierr は各ドメイン共通のエラーモデルとHTTPステータスへの対応付け
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT" // 予約重複・在庫不足など
	CodeForbidden       Code = "FORBIDDEN"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string       { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError   { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError  { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError  { return &APIError{Code: CodeConflict, Message: msg} }
func ErrForbidden(msg string) *APIError { return &APIError{Code: CodeForbidden, Message: msg} }
func ErrInternal(msg string) *APIError  { return &APIError{Code: CodeInternal, Message: msg} }

// Is は err が code を持つ APIError か
func Is(err error, code Code) bool {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code == code
	}
	return false
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeForbidden:
			return http.StatusForbidden
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// ===== handler helpers =====

type ErrDTO struct {
	Error *APIError `json:"error"`
}

// NewErrDTO: APIError 以外は内部エラー扱い。DBエラー文言などはクライアントに出さない
func NewErrDTO(err error) ErrDTO {
	var api *APIError
	if errors.As(err, &api) {
		return ErrDTO{Error: api}
	}
	return ErrDTO{Error: ErrInternal("internal error")}
}

// Write はエラーをJSONで返す
func Write(c *gin.Context, err error) {
	c.JSON(ToHTTPStatus(err), NewErrDTO(err))
}

// BadJSON: ShouldBindJSON 失敗時
func BadJSON(c *gin.Context, err error) {
	msg := "invalid json"
	if err != nil {
		msg = "invalid json: " + err.Error()
	}
	c.JSON(http.StatusBadRequest, NewErrDTO(ErrInvalid(msg)))
}
