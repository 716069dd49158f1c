package domain

import "context"

type Service interface {
	HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (Result, error)
}
