package domain

import "context"

type requestInfoKey struct{}

type RequestInfo struct {
	IPAddress string
	UserAgent string
}

func WithRequestInfo(ctx context.Context, ipAddress, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, RequestInfo{IPAddress: ipAddress, UserAgent: userAgent})
}

func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if ctx == nil {
		return RequestInfo{}
	}
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
