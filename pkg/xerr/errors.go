package xerr

import (
	"errors"
	"fmt"
)

// 常用错误码定义
const (
	OK                 = 200
	RequestParamsError = 400
	FeedStopped        = 410
	DecodeError        = 422
	ServerCommonError  = 500
	UpstreamError      = 502
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func Newf(code int, format string, args ...any) error {
	return &CodeError{Code: code, Msg: fmt.Sprintf(format, args...)}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// CodeOf 取错误链上的错误码，非 CodeError 返回 ServerCommonError
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

func MapErrMsg(code int) string {
	switch code {
	case RequestParamsError:
		return "参数错误"
	case FeedStopped:
		return "行情源已停止"
	case DecodeError:
		return "消息解析失败"
	case UpstreamError:
		return "上游连接异常"
	case ServerCommonError:
		return "服务器开小差了"
	default:
		return "未知错误"
	}
}
