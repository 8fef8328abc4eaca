package storage

import "context"

// BlobNamespace tags what a blob is used for, the way the Rust blob
// storage capability tags every path with a namespace enum rather than
// mixing concerns in one flat bucket.
type BlobNamespace string

const (
	BlobNamespaceOplogPayload    BlobNamespace = "oplog-payload"
	BlobNamespaceComponent       BlobNamespace = "component"
	BlobNamespaceCompressedOplog BlobNamespace = "compressed-oplog"
	BlobNamespaceCertificateAuthority BlobNamespace = "certificate-authority"
)

// BlobStorage stores namespaced, opaque byte objects addressed by path.
// It backs large oplog payloads (request/response bodies over the inline
// threshold), compressed archive chunks, and component binaries.
type BlobStorage interface {
	Put(ctx context.Context, ns BlobNamespace, path string, data []byte) error
	Get(ctx context.Context, ns BlobNamespace, path string) ([]byte, error)
	Delete(ctx context.Context, ns BlobNamespace, path string) error
	DeleteDir(ctx context.Context, ns BlobNamespace, dir string) error
	ListDir(ctx context.Context, ns BlobNamespace, dir string) ([]string, error)
	Exists(ctx context.Context, ns BlobNamespace, path string) (bool, error)
	CreateDir(ctx context.Context, ns BlobNamespace, dir string) error
	Close() error
}
