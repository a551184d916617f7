package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// EndpointPath is the realtime push endpoint on the monitor API.
const EndpointPath = "/ws/realtime"

// EndpointURL derives the realtime websocket URL from the API base URL:
// wss for https bases, ws otherwise. A base that is already ws(s) keeps its
// scheme.
func EndpointURL(base string) (string, error) {
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("source url %q has no host", base)
	}

	scheme := "ws"
	switch u.Scheme {
	case "https", "wss":
		scheme = "wss"
	case "http", "ws":
	default:
		return "", fmt.Errorf("unsupported source url scheme %q", u.Scheme)
	}

	ws := &url.URL{Scheme: scheme, Host: u.Host, Path: EndpointPath}
	return ws.String(), nil
}
