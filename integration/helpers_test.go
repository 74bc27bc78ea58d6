package integration

import (
	"context"

	"github.com/a-h/agentui/models"
)

type relayFunc func(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error)

func (f relayFunc) RelayPost(ctx context.Context, req models.RelayRequest) (models.RelayResponse, error) {
	return f(ctx, req)
}
