package api

import (
	"html/template"
	"log/slog"
	"net/http"
)

// callbackPage relays the authorization code back to the window that opened
// the sign-in popup. The popup cannot reach the relay's session directly, so
// the code travels browser-side via postMessage to the opener's origin.
var callbackPage = template.Must(template.New("oauth_callback").Parse(`<!DOCTYPE html>
<html>
<head><title>Authentication Complete</title></head>
<body>
<p>Authentication successful. Please wait...</p>
<script>
    window.onload = function() {
        if (window.opener) {
            window.opener.postMessage({
                type: 'oauth_complete',
                auth_code: {{.Code}},
                state: {{.State}}
            }, window.opener.location.origin);
            window.close();
        } else {
            document.body.innerHTML = "<h1>Error: Not in a popup.</h1>";
        }
    };
</script>
</body>
</html>
`))

// HandleOAuthCallback handles GET /oauth_callback, the redirect target of the
// identity provider. It is not part of the bridge itself: it only ferries
// code and state back to the original window, which then submits them to
// /chat.
func (h *Handler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Code  string
		State string
	}{
		Code:  r.URL.Query().Get("code"),
		State: r.URL.Query().Get("state"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := callbackPage.Execute(w, data); err != nil {
		slog.Warn("failed to render oauth callback page", "error", err)
	}
}
