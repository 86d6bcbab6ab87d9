package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 中继错误类别.
type Kind string

const (
	KindMethodNotAllowed Kind = "method_not_allowed"
	KindNoFileProvided   Kind = "no_file_provided"
	KindParseFailure     Kind = "parse_failure"
	KindIOFailure        Kind = "io_failure"
	KindUpstreamError    Kind = "upstream_error"
	KindUnknownFailure   Kind = "unknown_failure"
)

// 子类别，细化 Kind.
const (
	SubTooLarge     = "too_large"
	SubEmptyFile    = "empty_file"
	SubTooManyFiles = "too_many_files"
	SubMalformed    = "malformed"
	SubTimeout      = "timeout"
	SubCircuitOpen  = "circuit_open"
	SubInvalidBody  = "invalid_body"
	SubCanceled     = "canceled"
)

// 返回给调用方的固定错误信息，细节只写日志.
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgNoFile           = "No file uploaded"
	MsgParseForm        = "Failed to parse form"
	MsgServerError      = "Server error"
)

// Error 中继流水线中的分类错误.
type Error struct {
	Kind    Kind
	SubKind string
	Op      string // 出错的阶段，如 intake.spool
	Status  int    // 上游状态码，仅 KindUpstreamError 有意义
	Err     error
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) withSub(sub string) *Error {
	e.SubKind = sub
	return e
}

func (e *Error) Error() string {
	kind := string(e.Kind)
	if e.SubKind != "" {
		kind += "/" + e.SubKind
	}

	if e.Status != 0 {
		kind += fmt.Sprintf(" (status %d)", e.Status)
	}

	if e.Err == nil {
		return e.Op + ": " + kind
	}

	return e.Op + ": " + kind + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回 err 的类别，非中继错误视为 KindUnknownFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}

	return KindUnknownFailure
}

// SubKindOf 返回 err 的子类别.
func SubKindOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		return re.SubKind
	}

	return ""
}

// IsKind 判断 err 是否属于 kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus 将错误映射为响应状态码.
func HTTPStatus(err error) int {
	var re *Error
	if !errors.As(err, &re) {
		return http.StatusInternalServerError
	}

	switch re.Kind {
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindNoFileProvided:
		return http.StatusBadRequest
	case KindUpstreamError:
		switch re.SubKind {
		case SubTimeout:
			return http.StatusGatewayTimeout
		case SubCircuitOpen:
			return http.StatusServiceUnavailable
		case SubInvalidBody:
			return http.StatusBadGateway
		}

		if re.Status >= http.StatusBadRequest && re.Status <= 599 {
			return re.Status
		}

		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回可以暴露给调用方的错误信息.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindMethodNotAllowed:
		return MsgMethodNotAllowed
	case KindNoFileProvided:
		return MsgNoFile
	case KindParseFailure:
		return MsgParseForm
	default:
		return MsgServerError
	}
}
