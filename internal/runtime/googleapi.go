// internal/runtime/googleapi.go: adapts *gmail.Service to our small interface
package runtime

import (
	"context"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/inboxtally/internal/gmail"
)

const userID = "me"

type googleClient struct{ svc *gmail.Service }

func NewGoogleAPIClient(svc *gmail.Service) *googleClient { return &googleClient{svc} }

func (g *googleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	lr, err := g.svc.Users.Labels.List(userID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	out := make([]gc.Label, 0, len(lr.Labels))
	for _, l := range lr.Labels {
		out = append(out, gc.Label{ID: gc.LabelID(l.Id), Name: l.Name})
	}
	return out, nil
}

func (g *googleClient) ListThreads(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ThreadPage, error) {
	call := g.svc.Users.Threads.List(userID).Q(q.Raw).MaxResults(int64(pageSize))
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ThreadPage{}, err
	}
	ids := make([]gc.ThreadID, 0, len(res.Threads))
	for _, t := range res.Threads {
		ids = append(ids, gc.ThreadID(t.Id))
	}
	return gc.ThreadPage{IDs: ids, NextPageToken: res.NextPageToken}, nil
}

func (g *googleClient) GetThread(ctx context.Context, id gc.ThreadID) (gc.ThreadMeta, error) {
	th, err := g.svc.Users.Threads.Get(userID, string(id)).
		Format("minimal").
		Fields(googleapi.Field("id,messages/labelIds")).
		Context(ctx).
		Do()
	if err != nil {
		return gc.ThreadMeta{}, err
	}
	return gc.ThreadMeta{ID: id, LabelIDs: threadLabels(th)}, nil
}

// threadLabels unions the labels of every message in the thread. It returns
// nil when the thread carries no label data at all.
func threadLabels(th *gmail.Thread) []gc.LabelID {
	var out []gc.LabelID
	seen := map[string]struct{}{}
	for _, m := range th.Messages {
		if m == nil {
			continue
		}
		for _, l := range m.LabelIds {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, gc.LabelID(l))
		}
	}
	return out
}

var _ gc.Client = (*googleClient)(nil)
