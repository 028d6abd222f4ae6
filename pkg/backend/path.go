package backend

import (
	"net/url"
	"path"
	"strings"
)

// ResolvePath turns a user supplied path into an absolute, clean path.
//
// A "scheme://host:port" prefix is dropped, since the Session already knows
// which filesystem it talks to. Relative paths are joined to cwd.
func ResolvePath(cwd, p string) string {
	if strings.Contains(p, "://") {
		if u, err := url.Parse(p); err == nil {
			p = u.Path
		}
	}

	if p == "" {
		p = "."
	}
	if !path.IsAbs(p) {
		if cwd == "" {
			cwd = "/"
		}
		p = path.Join(cwd, p)
	}
	return path.Clean(p)
}

// SplitURL extracts the scheme, host and port parts of a filesystem URL such
// as "hdfs://namenode:8020/data". Plain paths return empty values.
func SplitURL(raw string) (scheme, host, port string) {
	if !strings.Contains(raw, "://") {
		return "", "", ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", ""
	}
	return u.Scheme, u.Hostname(), u.Port()
}

// DefaultHomeDir is the working directory a fresh Session starts in on
// distributed filesystems.
func DefaultHomeDir(user string) string {
	if user == "" {
		return "/"
	}
	return path.Join("/user", user)
}
