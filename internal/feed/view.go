// Package feed maintains live, ordered views over document store
// collections: the post feed and per-post comment threads.
package feed

import (
	"context"
	"sync"

	"github.com/chirpfeed/chirpfeed/internal/models"
	"github.com/chirpfeed/chirpfeed/internal/store"
	"github.com/chirpfeed/chirpfeed/pkg/metrics"
)

const (
	// PostsCollection is the top-level post collection path.
	PostsCollection = "posts"
	// CommentsCollection is the per-post child collection name.
	CommentsCollection = "comments"
	// OrderField orders both collections, newest first.
	OrderField = "timestamp"
)

// view is the shared live-subscription lifecycle: one active subscription
// per scope, full snapshot replacement on every notification, synchronous
// release. Exactly one subscription is active at a time; re-scoping releases
// the prior handle before establishing the next.
type view struct {
	st    store.Store
	scope string // metrics label

	mu     sync.Mutex
	gen    int
	cancel store.Unsubscribe
	docs   []store.Document
	closed bool
	notify chan struct{}
}

func newView(st store.Store, scope string) *view {
	return &view{st: st, scope: scope, notify: make(chan struct{}, 1)}
}

// open subscribes to the given path, releasing any prior subscription first.
// The store delivers the initial snapshot synchronously, so the view is
// populated when open returns.
func (v *view) open(ctx context.Context, path string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.gen++
	gen := v.gen
	prior := v.cancel
	v.cancel = nil
	v.mu.Unlock()

	// prior handle fully released before the new scope is established:
	// no overlap, no racing view updates
	if prior != nil {
		prior()
	}

	cancel, err := v.st.SubscribeCollection(ctx, path, OrderField, func(docs []store.Document) {
		v.apply(gen, docs)
	})
	if err != nil {
		return err
	}

	v.mu.Lock()
	if v.closed || v.gen != gen {
		v.mu.Unlock()
		cancel()
		return nil
	}
	v.cancel = cancel
	v.mu.Unlock()
	return nil
}

// apply replaces the visible sequence in one step. Snapshots from a
// superseded scope are dropped.
func (v *view) apply(gen int, docs []store.Document) {
	v.mu.Lock()
	if v.closed || v.gen != gen {
		v.mu.Unlock()
		return
	}
	v.docs = docs
	v.mu.Unlock()

	metrics.SnapshotsDelivered.WithLabelValues(v.scope).Inc()
	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// close releases the subscription. Synchronous: after close returns the view
// publishes no further updates even if the source still fires.
func (v *view) close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	cancel := v.cancel
	v.cancel = nil
	v.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (v *view) snapshot() []store.Document {
	v.mu.Lock()
	defer v.mu.Unlock()
	docs := make([]store.Document, len(v.docs))
	copy(docs, v.docs)
	return docs
}

// PostFeed is the live reverse-chronological post view.
type PostFeed struct {
	*view
}

func NewPostFeed(st store.Store) *PostFeed {
	return &PostFeed{view: newView(st, "feed")}
}

func (f *PostFeed) Open(ctx context.Context) error {
	return f.open(ctx, PostsCollection)
}

func (f *PostFeed) Close() { f.close() }

// Changed signals after every snapshot replacement. Signals coalesce.
func (f *PostFeed) Changed() <-chan struct{} { return f.notify }

// Posts returns the current ordered sequence. Empty until the first
// snapshot arrives.
func (f *PostFeed) Posts() []models.Post {
	docs := f.snapshot()
	posts := make([]models.Post, 0, len(docs))
	for _, d := range docs {
		posts = append(posts, models.Post{
			ID:        d.ID,
			Avatar:    d.Str("avatar"),
			Image:     d.Str("image"),
			Text:      d.Str("text"),
			Timestamp: d.Time(OrderField),
			Username:  d.Str("username"),
		})
	}
	return posts
}

// CommentThread is the live comment view for a single post, keyed by post
// identity. Switching posts releases the prior subscription first.
type CommentThread struct {
	*view

	mu     sync.Mutex
	postID string
}

func NewCommentThread(st store.Store) *CommentThread {
	return &CommentThread{view: newView(st, "comments")}
}

// SetPost re-scopes the thread to the given post.
func (t *CommentThread) SetPost(ctx context.Context, postID string) error {
	t.mu.Lock()
	t.postID = postID
	t.mu.Unlock()
	return t.open(ctx, CommentsPath(postID))
}

// PostID reports the currently subscribed post.
func (t *CommentThread) PostID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.postID
}

func (t *CommentThread) Close() { t.close() }

func (t *CommentThread) Changed() <-chan struct{} { return t.notify }

func (t *CommentThread) Comments() []models.Comment {
	docs := t.snapshot()
	comments := make([]models.Comment, 0, len(docs))
	for _, d := range docs {
		comments = append(comments, models.Comment{
			ID:        d.ID,
			Avatar:    d.Str("avatar"),
			Text:      d.Str("text"),
			Timestamp: d.Time(OrderField),
			Username:  d.Str("username"),
		})
	}
	return comments
}

// CommentsPath is the child collection path for a post's comments.
func CommentsPath(postID string) string {
	return PostsCollection + "/" + postID + "/" + CommentsCollection
}
