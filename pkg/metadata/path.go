package metadata

import (
	"path"
	"strings"
	"time"
)

// CleanPath validates and cleans an absolute namespace path.
func CleanPath(p string) (string, error) {
	if p == "" || !strings.HasPrefix(p, "/") {
		return "", NewStoreError(ErrInvalidArgument, p, "path must be absolute")
	}
	return path.Clean(p), nil
}

// Parent returns the parent directory of a clean path. The root is its own parent.
func Parent(p string) string {
	if p == "/" {
		return "/"
	}
	return path.Dir(p)
}

// IsWithin reports whether p equals dir or lies below it.
func IsWithin(p, dir string) bool {
	if dir == "/" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// Rebase moves p from below oldRoot to below newRoot.
func Rebase(p, oldRoot, newRoot string) string {
	if p == oldRoot {
		return newRoot
	}
	return path.Join(newRoot, strings.TrimPrefix(p, oldRoot+"/"))
}

// Ancestors returns every proper ancestor of p from the root down, excluding "/".
func Ancestors(p string) []string {
	if p == "/" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	out := make([]string, 0, len(parts)-1)
	cur := ""
	for _, part := range parts[:len(parts)-1] {
		cur += "/" + part
		out = append(out, cur)
	}
	return out
}

// RootEntry returns the entry stores seed the namespace with.
func RootEntry() *Entry {
	now := time.Now()
	return &Entry{
		Path:       "/",
		Kind:       KindDirectory,
		Mode:       0755,
		Owner:      "root",
		Group:      "supergroup",
		ModTime:    now,
		AccessTime: now,
	}
}

// DirectoryFrom derives a directory entry for p from template.
func DirectoryFrom(p string, template Entry) *Entry {
	dir := template
	dir.Path = p
	dir.Kind = KindDirectory
	dir.Size = 0
	dir.ContentID = ""
	dir.Replication = 0
	dir.BlockSize = 0
	if dir.Mode == 0 {
		dir.Mode = 0755
	}
	if dir.ModTime.IsZero() {
		dir.ModTime = time.Now()
	}
	if dir.AccessTime.IsZero() {
		dir.AccessTime = dir.ModTime
	}
	return &dir
}
