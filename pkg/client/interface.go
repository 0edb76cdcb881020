package client

import (
	"context"
)

// VisionClient sends a prompt plus a base64 encoded image to a vision-language model
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
