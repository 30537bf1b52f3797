package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/tunelink/internal/shared"
)

// OAuthResult carries the authorization code captured by [OAuthHandler].
type OAuthResult struct {
	Code string
	err  error
}

func (o *OAuthResult) Error() error {
	return o.err
}

// OAuthHandler captures one authorization code callback for the CLI login flow.
//
// It checks state and hands the code to the caller, who runs the exchange through the account linker.
type OAuthHandler struct {
	path        string
	state       string
	resultChan  chan OAuthResult
	once        sync.Once
	callbackHit bool
	mu          sync.Mutex
}

// NewOAuthHandler creates a handler serving path that expects state back from the platform.
func NewOAuthHandler(path, state string) *OAuthHandler {
	return &OAuthHandler{
		path:       path,
		state:      state,
		resultChan: make(chan OAuthResult, 1),
	}
}

// Mount registers the callback path.
func (h *OAuthHandler) Mount(r chi.Router) {
	r.Method(http.MethodGet, h.path, h)
}

// ServeHTTP handles the callback request once. Later hits are rejected.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.callbackHit {
		h.mu.Unlock()
		http.Error(w, "Callback already processed", http.StatusBadRequest)
		return
	}
	h.callbackHit = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.Send(OAuthResult{err: shared.ErrStateMismatch})
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		err := fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))
		h.Send(OAuthResult{err: err})
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	h.Send(OAuthResult{Code: code})

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `
<!DOCTYPE html>
<html>
<head>
    <title>Account Linked</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Authorization received</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
</body>
</html>
`)
}

// Send delivers the result through the channel (only once).
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.resultChan <- result
		close(h.resultChan)
	})
}

// Result returns the result channel. It receives exactly one result and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult {
	return h.resultChan
}
