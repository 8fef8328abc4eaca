package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golemproject/golem/pkg/storage"
	"github.com/golemproject/golem/pkg/types"
	"github.com/golemproject/golem/pkg/worker"
)

// BlobComponentLoader returns a worker.ComponentLoader that reads
// compiled WASM bytes out of blob storage's component namespace, keyed
// "<componentId>/<version>". Publishing a new component version is
// just a Put to that same path from whatever build/deploy tooling
// produces compiled components; this package only reads.
func BlobComponentLoader(blob storage.BlobStorage) worker.ComponentLoader {
	return func(ctx context.Context, componentId types.ComponentId, version types.ComponentVersion) ([]byte, error) {
		path := componentPath(componentId, version)
		data, err := blob.Get(ctx, storage.BlobNamespaceComponent, path)
		if err != nil {
			return nil, fmt.Errorf("load component %s: %w", path, err)
		}
		return data, nil
	}
}

func componentPath(componentId types.ComponentId, version types.ComponentVersion) string {
	return string(componentId) + "/" + strconv.FormatUint(uint64(version), 10)
}
