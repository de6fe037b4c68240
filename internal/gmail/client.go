package gmail

import "context"

// Client is the narrow Gmail surface required by inboxtally.
type Client interface {
	ListLabels(ctx context.Context) ([]Label, error)
	ListThreads(ctx context.Context, q Query, pageToken string, pageSize int) (ThreadPage, error)
	GetThread(ctx context.Context, id ThreadID) (ThreadMeta, error)
}
