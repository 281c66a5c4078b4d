package matte

import (
	"errors"
	"fmt"
)

// 错误类型，调用方通过 errors.Is 判断
var (
	ErrInvalidChannelCount = errors.New("invalid channel count")
	ErrDimensionMismatch   = errors.New("dimension mismatch")
	ErrCropOutOfBounds     = errors.New("crop out of bounds")
	ErrInferenceFailure    = errors.New("inference failure")
	ErrDegenerateMask      = errors.New("degenerate mask")
)

// 流水线阶段名
const (
	StageInput       = "input"
	StageManualCrop  = "manual_crop"
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageComposite   = "composite"
	StageAutoCrop    = "auto_crop"
	StageBackground  = "background"
)

// Error 带阶段和尺寸信息的错误
type Error struct {
	Stage  string
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := "matte: " + e.Stage + ": " + e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(stage string, kind error, format string, args ...any) *Error {
	return &Error{Stage: stage, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrapError(stage string, kind error, err error, format string, args ...any) *Error {
	return &Error{Stage: stage, Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}
