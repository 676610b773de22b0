package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Address is the externally reachable base location of a deployment.
type Address struct {
	Scheme string
	Host   string
	Port   int
	// Path is either empty or starts with a single "/" and has no trailing "/".
	Path string
}

// String renders scheme://host:port[/path].
func (a Address) String() string {
	return fmt.Sprintf("%s://%s:%d%s", a.Scheme, a.Host, a.Port, a.Path)
}

// Join appends rel to the address path. Exactly one "/" separates segments,
// whatever slashes rel or the existing path carry, and the result never ends
// with "/".
func (a Address) Join(rel string) Address {
	joined := a
	joined.Path = joinPath(a.Path, rel)
	return joined
}

// WithPath returns a copy of a with its path replaced by the normalized p.
func (a Address) WithPath(p string) Address {
	joined := a
	joined.Path = joinPath("", p)
	return joined
}

func joinPath(segments ...string) string {
	var parts []string
	for _, s := range segments {
		for _, p := range strings.Split(s, "/") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "/" + strings.Join(parts, "/")
}

// ParseAddress parses scheme://host:port[/path]. A missing port defaults to
// 80 for http and 443 for https.
func ParseAddress(raw string) (Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return Address{}, fmt.Errorf("invalid address %q: scheme and host are required", raw)
	}
	port := 80
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Address{}, fmt.Errorf("invalid port in address %q: %w", raw, err)
		}
	}
	return Address{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Port:   port,
		Path:   joinPath(u.Path),
	}, nil
}
