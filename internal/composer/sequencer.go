// Package composer turns form input into durable records, sequencing blob
// uploads strictly before the structured writes that reference them.
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/chirpfeed/chirpfeed/internal/blob"
	"github.com/chirpfeed/chirpfeed/internal/feed"
	"github.com/chirpfeed/chirpfeed/internal/identity"
	"github.com/chirpfeed/chirpfeed/internal/session"
	"github.com/chirpfeed/chirpfeed/internal/store"
	"github.com/chirpfeed/chirpfeed/pkg/metrics"
)

var (
	// ErrEmptyText rejects posts and comments with no message. Image-only
	// posts are disallowed regardless of attachment state.
	ErrEmptyText = errors.New("message text is required")
)

const (
	imagesPrefix  = "images/"
	avatarsPrefix = "avatars/"
)

// Attachment is a selected local file.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Composer coordinates blob storage, the document store, the identity
// provider and the session mirror. The ordering contract: upload completion
// precedes reference resolution precedes the structured write. On upload
// failure the structured write is skipped entirely.
type Composer struct {
	store    store.Store
	blobs    blob.Storage
	provider identity.Provider
	session  *session.Manager
}

func New(st store.Store, blobs blob.Storage, provider identity.Provider, sess *session.Manager) *Composer {
	return &Composer{store: st, blobs: blobs, provider: provider, session: sess}
}

// SubmitPost writes a new post for the current session user. With no image
// the record is written immediately with an empty reference.
func (c *Composer) SubmitPost(ctx context.Context, text string, image *Attachment) error {
	if text == "" {
		return ErrEmptyText
	}

	imageURL := ""
	if image != nil {
		url, err := c.uploadAndResolve(ctx, imagesPrefix, image)
		if err != nil {
			return err
		}
		imageURL = url
	}

	user := c.session.Current()
	_, err := c.store.AddDocument(ctx, feed.PostsCollection, store.Fields{
		"avatar":        user.PhotoURL,
		"image":         imageURL,
		"text":          text,
		feed.OrderField: store.ServerTimestamp,
		"username":      user.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("write post: %w", err)
	}
	return nil
}

// SubmitComment writes a comment under the given post.
func (c *Composer) SubmitComment(ctx context.Context, postID, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	user := c.session.Current()
	_, err := c.store.AddDocument(ctx, feed.CommentsPath(postID), store.Fields{
		"avatar":        user.PhotoURL,
		"text":          text,
		feed.OrderField: store.ServerTimestamp,
		"username":      user.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("write comment: %w", err)
	}
	return nil
}

// Register creates an account, uploads the avatar if one was selected, then
// writes the profile to the provider and mirrors it into the session. The
// avatar upload strictly precedes the profile write.
func (c *Composer) Register(ctx context.Context, username, email, password string, avatar *Attachment) (*identity.Account, error) {
	acct, err := c.provider.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}

	photoURL := ""
	if avatar != nil {
		url, err := c.uploadAndResolve(ctx, avatarsPrefix, avatar)
		if err != nil {
			return nil, err
		}
		photoURL = url
	}

	if err := c.provider.UpdateProfile(ctx, acct.UID, identity.Profile{DisplayName: username, PhotoURL: photoURL}); err != nil {
		return nil, err
	}
	c.session.UpdateProfile(username, photoURL)

	acct.DisplayName = username
	acct.PhotoURL = photoURL
	return acct, nil
}

// uploadAndResolve performs the upload half of the sequence: synthesize a
// collision-resistant key, upload, then resolve the durable reference. An
// error here means no structured write may happen for this operation.
func (c *Composer) uploadAndResolve(ctx context.Context, prefix string, att *Attachment) (string, error) {
	key, err := StorageKey(att.Name)
	if err != nil {
		return "", err
	}
	fullKey := prefix + key

	if err := c.blobs.Upload(ctx, fullKey, bytes.NewReader(att.Data), int64(len(att.Data)), att.ContentType); err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("upload %s: %w", att.Name, err)
	}
	url, err := c.blobs.ResolveURL(ctx, fullKey)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("resolve %s: %w", att.Name, err)
	}
	metrics.UploadsTotal.WithLabelValues("completed").Inc()
	return url, nil
}
