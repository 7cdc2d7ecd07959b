//go:build !llamago

package semantic

import (
	"context"
	"fmt"

	"github.com/wgomg/tably/internal/config"
	"github.com/wgomg/tably/internal/utils"
)

func newLlamaGoEmbedder(ctx context.Context, logger *utils.Logger, cfg *config.SemanticConfig) (Embedder, error) {
	return nil, fmt.Errorf("llamago backend not available: build with -tags llamago")
}
