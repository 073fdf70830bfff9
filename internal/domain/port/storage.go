package port

import "context"

// OutputArchive keeps a copy of completed outputs outside the local disk.
type OutputArchive interface {
	ArchiveOutput(ctx context.Context, objectKey string, localPath string) error
}
