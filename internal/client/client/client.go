package client

import (
	"context"

	"github.com/dmitrijs2005/docsync/internal/client/models"
)

// Client reads and conditionally writes the shared document.
type Client interface {
	// FetchDocument returns the current records and their content hash.
	FetchDocument(ctx context.Context, cred Credential) (Document, error)

	// WriteDocument replaces the document with records if its hash is
	// still hash, and returns the new hash.
	WriteDocument(ctx context.Context, cred Credential, hash string, records []models.Record) (string, error)
}

// Document is one observed version of the shared document.
type Document struct {
	Hash    string
	Records []models.Record

	// Size is the length in bytes of the serialized document.
	Size int64
	// Raw is true when the body was too large to be inlined and was
	// fetched with a second request.
	Raw bool
}

type messageKey struct{}

// WithMessage sets the commit message used by writes made with ctx.
func WithMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, messageKey{}, msg)
}

func messageFrom(ctx context.Context, fallback string) string {
	if msg, ok := ctx.Value(messageKey{}).(string); ok && msg != "" {
		return msg
	}
	return fallback
}
