package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/edgegate/edgegate/internal/observability"
)

// websocketProxy relays websocket connections between client and
// backend at the message level.
type websocketProxy struct {
	logger observability.Logger
}

// upgrader upgrades client connections. Origin checking is left to
// upstream middleware.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// proxy dials the backend, upgrades the client connection, and relays
// messages in both directions until either side closes.
func (wp *websocketProxy) proxy(w http.ResponseWriter, r *http.Request, target *url.URL, transport http.RoundTripper) error {
	backendURL := backendWSURL(target, r)

	dialer := websocket.Dialer{}
	if t, ok := transport.(*http.Transport); ok && t != nil && t.TLSClientConfig != nil {
		dialer.TLSClientConfig = t.TLSClientConfig.Clone()
	}

	backendConn, resp, err := dialer.DialContext(r.Context(), backendURL, forwardableHeaders(r))
	if err != nil {
		wp.writeDialError(w, resp, err)
		return fmt.Errorf("failed to dial backend websocket: %w", err)
	}
	defer backendConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade client connection: %w", err)
	}
	defer clientConn.Close()

	wp.relay(clientConn, backendConn)
	return nil
}

// writeDialError forwards the backend's handshake response when one
// exists, otherwise answers Bad Gateway.
func (wp *websocketProxy) writeDialError(w http.ResponseWriter, resp *http.Response, dialErr error) {
	if resp != nil {
		defer resp.Body.Close()
		for k, vv := range resp.Header {
			for _, v := range vv {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
	} else {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	wp.logger.Debug("websocket backend dial failed",
		observability.Error(dialErr))
}

// relay copies messages between the two connections until one errors.
func (wp *websocketProxy) relay(clientConn, backendConn *websocket.Conn) {
	errCh := make(chan error, 2)

	pipe := func(dst, src *websocket.Conn) {
		for {
			msgType, msg, err := src.ReadMessage()
			if err != nil {
				_ = dst.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				errCh <- err
				return
			}
			if err := dst.WriteMessage(msgType, msg); err != nil {
				errCh <- err
				return
			}
		}
	}

	go pipe(clientConn, backendConn)
	go pipe(backendConn, clientConn)

	<-errCh
}

// backendWSURL maps the target URL to its websocket scheme.
func backendWSURL(target *url.URL, r *http.Request) string {
	scheme := "ws"
	if target.Scheme == "https" {
		scheme = "wss"
	}

	backendURL := scheme + "://" + target.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		backendURL += "?" + r.URL.RawQuery
	}

	return backendURL
}

// forwardableHeaders copies request headers, dropping the websocket
// handshake headers that gorilla manages itself.
func forwardableHeaders(r *http.Request) http.Header {
	header := http.Header{}
	for k, vv := range r.Header {
		switch strings.ToLower(k) {
		case "upgrade", "connection", "sec-websocket-key",
			"sec-websocket-version", "sec-websocket-extensions",
			"sec-websocket-protocol":
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	return header
}
