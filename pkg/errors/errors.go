package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// 业务错误码
const (
	CodeInternal   = 10000
	CodeValidation = 10400
	CodeNotFound   = 10404
	CodeConflict   = 10409
	CodeStorage    = 10500 // 文件读写失败
	CodeExternal   = 10502 // 对象存储 / 数据集仓库调用失败
)

// Error represents a custom error with stack trace
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"` // 原始错误，不序列化
	Stack   string `json:"stack,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// Wrap wraps err keeping its code when err is already an *Error.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    GetCode(err),
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// WrapCode wraps err under an explicit code.
func WrapCode(err error, code int, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

func NotFound(message string) *Error { return WithCode(CodeNotFound, message) }

func Conflict(message string) *Error { return WithCode(CodeConflict, message) }

func Validation(message string) *Error { return WithCode(CodeValidation, message) }

func Storage(err error, message string) *Error { return WrapCode(err, CodeStorage, message) }

func External(err error, message string) *Error { return WrapCode(err, CodeExternal, message) }

func Internal(err error, message string) *Error { return WrapCode(err, CodeInternal, message) }

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除顶部几行（captureStack 及构造函数自身）
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}
	return strings.TrimSpace(stack)
}

// GetCode returns the code of the first *Error in the chain, 0 if none.
func GetCode(err error) int {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return 0
		}
		if e.Code != 0 {
			return e.Code
		}
		err = e.Err
	}
	return 0
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Error()
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code int) bool {
	return err != nil && GetCode(err) == code
}

// HTTPStatus maps an error onto the status code returned to clients.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Err != nil && e.Message != "" {
				fmt.Fprintf(s, ": %v", e.Err)
			}
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
