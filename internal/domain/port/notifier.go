package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, videoID int64, sourcePath string, errorMsg string) error
}
