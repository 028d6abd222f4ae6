package cluster

import (
	"context"
	"sync"

	"github.com/marmos91/godfs/internal/logger"
	"github.com/marmos91/godfs/pkg/metadata"
)

// handles tracks the files open against one Backend.
//
// Writers find their namespace entry through the path recorded here, which
// renames keep current, so a lease follows the file the way it does on
// HDFS. Content whose last entry went away while a handle still used it is
// unlinked: it is deleted when the last such handle closes.
type handles struct {
	mu       sync.Mutex
	paths    map[*file]string
	refs     map[metadata.ContentID]int
	unlinked map[metadata.ContentID]struct{}
}

func newHandles() *handles {
	return &handles{
		paths:    make(map[*file]string),
		refs:     make(map[metadata.ContentID]int),
		unlinked: make(map[metadata.ContentID]struct{}),
	}
}

func (h *handles) add(f *file) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.paths[f] = f.path
	if f.id != "" {
		h.refs[f.id]++
	}
}

// remove forgets f and returns its content ID when f was the last handle
// on unlinked content, which the caller must then delete.
func (h *handles) remove(f *file) (metadata.ContentID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.paths[f]; !ok {
		return "", false
	}
	delete(h.paths, f)
	if f.id == "" {
		return "", false
	}

	h.refs[f.id]--
	if h.refs[f.id] > 0 {
		return "", false
	}
	delete(h.refs, f.id)
	if _, ok := h.unlinked[f.id]; ok {
		delete(h.unlinked, f.id)
		return f.id, true
	}
	return "", false
}

// inUse reports whether an open handle reads or writes id.
func (h *handles) inUse(id metadata.ContentID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs[id] > 0
}

// unlink returns the IDs that can be deleted now and marks the rest for
// deletion on last close.
func (h *handles) unlink(ids []metadata.ContentID) []metadata.ContentID {
	h.mu.Lock()
	defer h.mu.Unlock()

	var now []metadata.ContentID
	for _, id := range ids {
		if id == "" {
			continue
		}
		if h.refs[id] > 0 {
			h.unlinked[id] = struct{}{}
			continue
		}
		now = append(now, id)
	}
	return now
}

// rename runs fn, which renames oldPath to newPath in the namespace, and
// moves every open writer under oldPath along with it. Writers cannot
// resolve their entry while fn runs.
func (h *handles) rename(oldPath, newPath string, fn func() error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	for f, p := range h.paths {
		if !f.writable {
			continue
		}
		if metadata.IsWithin(p, oldPath) {
			h.paths[f] = metadata.Rebase(p, oldPath, newPath)
		}
	}
	return nil
}

// withPath runs fn with the current namespace path of f. Renames wait for
// fn to return.
func (h *handles) withPath(f *file, fn func(p string) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p, ok := h.paths[f]
	if !ok {
		p = f.path
	}
	return fn(p)
}

// freeContent deletes content no entry refers to any more, deferring IDs
// that open handles still use. Failures only leak storage, which garbage
// collection reclaims, so they are logged rather than returned.
func (b *Backend) freeContent(ctx context.Context, ids ...metadata.ContentID) {
	for _, id := range b.handles.unlink(ids) {
		b.deleteContent(ctx, id)
	}
}

func (b *Backend) deleteContent(ctx context.Context, id metadata.ContentID) {
	if err := b.data.Delete(ctx, id); err != nil {
		logger.WarnCtx(ctx, "cluster: failed to free content %s: %v", id, err)
	}
}
