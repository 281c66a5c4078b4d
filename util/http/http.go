package http

import (
	"context"
	"time"
)

// IClient 对外 HTTP 调用的最小接口，远程推理后端和图片下载都走这里
type IClient interface {
	DoHTTPRequest(ctx context.Context, requestParam *RequestParam) error
}

type RequestParam struct {
	RequestURI string
	Method     string
	Header     map[string]string
	// Body 支持 nil、io.Reader、[]byte，其余类型按 JSON 序列化
	Body interface{}
	// Response 非空时把响应体按 JSON 解到这里
	Response interface{}
	// RawResponse 非空时原样拷贝响应体，优先于 Response
	RawResponse *[]byte

	Timeout time.Duration
}
