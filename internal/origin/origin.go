// Package origin decides whether a browser Origin may talk to the signaling
// server.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Check validates a browser Origin header and decides whether the request is
// allowed. When the allowlist is non-empty each entry must be "*", "null" or
// a normalized origin (scheme://host[:port], lowercase, default port
// stripped). With an empty allowlist the policy is same-host: the origin's
// host[:port] must match the request's Host header.
//
// The returned origin is the normalized form, suitable for echoing in
// Access-Control-Allow-Origin.
func Check(header, requestHost string, allowlist []string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "null" {
		// Opaque origins (sandboxed iframes, file://) only pass by explicit
		// allowlisting.
		return "null", listed("null", allowlist)
	}

	scheme, host, port, ok := parseOrigin(header)
	if !ok {
		return "", false
	}
	normalized := scheme + "://" + hostPort(host, port)

	if len(allowlist) > 0 {
		return normalized, listed(normalized, allowlist)
	}

	// Same-host default. The scheme is deliberately not compared against the
	// request: behind a TLS-terminating proxy the server sees http while the
	// browser origin is https.
	reqHost, reqPort, ok := splitAuthority(strings.ToLower(strings.TrimSpace(requestHost)))
	if !ok {
		return "", false
	}
	if p, def := defaultPort(scheme); reqPort == p {
		reqPort = def
	}
	return normalized, hostPort(host, port) == hostPort(reqHost, reqPort)
}

func listed(origin string, allowlist []string) bool {
	for _, entry := range allowlist {
		if entry == "*" || entry == origin {
			return true
		}
	}
	return false
}

func parseOrigin(header string) (scheme, host, port string, ok bool) {
	u, err := url.Parse(header)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", "", false
	}

	scheme = strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", "", false
	}

	host, port, ok = splitAuthority(strings.ToLower(u.Host))
	if !ok {
		return "", "", "", false
	}
	if p, def := defaultPort(scheme); port == p {
		port = def
	}
	return scheme, host, port, true
}

func defaultPort(scheme string) (string, string) {
	if scheme == "https" {
		return "443", ""
	}
	return "80", ""
}

func hostPort(host, port string) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port == "" {
		return host
	}
	return host + ":" + port
}

// splitAuthority splits host[:port], unbracketing IPv6 literals. The port,
// when present, must be a valid non-zero port number.
func splitAuthority(authority string) (host, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}

	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		host = authority[1:end]
		rest := authority[end+1:]
		if rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return "", "", false
			}
			port = rest[1:]
		}
	} else {
		if strings.Count(authority, ":") > 1 {
			// Unbracketed IPv6 is not a valid authority.
			return "", "", false
		}
		host = authority
		if i := strings.IndexByte(authority, ':'); i >= 0 {
			host, port = authority[:i], authority[i+1:]
		}
	}

	if host == "" {
		return "", "", false
	}
	if port != "" {
		n, err := strconv.ParseUint(port, 10, 16)
		if err != nil || n == 0 {
			return "", "", false
		}
	}
	return host, port, true
}
