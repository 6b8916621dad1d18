package interfaces

import "context"

// Comment is a single PR/issue comment as surfaced by a VCS provider.
type Comment struct {
	ID   int64
	Body string
}

// CommentCapability is the small, provider-neutral capability set the
// initiator's optional PR-link acknowledgement depends on. Business logic
// (tag-block matching, upsert decision) lives outside implementations of
// this interface.
type CommentCapability interface {
	ListComments(ctx context.Context, prLink string) ([]Comment, error)
	CreateComment(ctx context.Context, prLink, body string) error
	UpdateComment(ctx context.Context, prLink string, commentID int64, body string) error
}

// GitCredentialSource resolves the token/SSH-key references a Job carries
// into usable clone credentials.
type GitCredentialSource interface {
	ResolveToken(ctx context.Context, ref string) (string, error)
	ResolveSSHKey(ctx context.Context, ref string) (string, error)
}
