package overlay

import "context"

// Surface puts a document on screen and feeds user input back into it.
type Surface interface {
	// Present shows doc until ctx ends or the document closes.
	Present(ctx context.Context, doc *Document) error
	// DeliversInput reports whether pointer and key events reach documents
	// through the surface itself rather than a global input hook.
	DeliversInput() bool
}

// Headless keeps documents in memory only.
type Headless struct{}

func (Headless) Present(context.Context, *Document) error { return nil }

func (Headless) DeliversInput() bool { return false }
