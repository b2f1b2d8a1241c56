package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

const (
	defaultCallbackAddr = "localhost:8080"
	callbackPath        = "/rollcall/oauth"
	defaultSignInWait   = 5 * time.Minute
)

// OAuth2Config identifies the Google client used by 'rollcall auth sheets'.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	// TokenFile receives the refresh token. Empty keeps the token in memory.
	TokenFile string
	// CallbackAddr is the loopback address Google redirects to.
	CallbackAddr string
	// Wait bounds how long the browser sign-in may take.
	Wait time.Duration
}

func (c OAuth2Config) callbackAddr() string {
	if c.CallbackAddr == "" {
		return defaultCallbackAddr
	}
	return c.CallbackAddr
}

func (c OAuth2Config) oauth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://" + c.callbackAddr() + callbackPath,
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
}

var callbackPage = template.Must(template.New("callback").Parse(`<html><body>
<h1>rollcall: {{.Title}}</h1>
<p>{{.Message}}</p>
</body></html>`))

type callbackResult struct {
	code string
	err  error
}

// callbackHandler accepts one redirect from Google and reports it on results.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = errors.New("sign-in response did not match this request")
			w.WriteHeader(http.StatusBadRequest)
		case q.Get("error") != "":
			res.err = fmt.Errorf("google refused access: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("google returned no authorization code")
		default:
			res.code = q.Get("code")
		}

		page := struct{ Title, Message string }{
			Title:   "Sheets export enabled",
			Message: "Return to the terminal. Attendance can now be exported with 'rollcall export --format sheets'.",
		}
		if res.err != nil {
			page.Title = "sign-in failed"
			page.Message = res.err.Error() + ". Run 'rollcall auth sheets' again."
		}
		_ = callbackPage.Execute(w, page)

		select {
		case results <- res:
		default:
		}
	})
	return mux
}

// AuthenticateOAuth2Interactive signs in through the browser and stores the
// resulting token. It always asks Google for a fresh refresh token.
func AuthenticateOAuth2Interactive(ctx context.Context, cfg OAuth2Config) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", cfg.callbackAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen for the sign-in callback on %s: %w", cfg.callbackAddr(), err)
	}

	state := uuid.NewString()
	results := make(chan callbackResult, 1)
	server := &http.Server{Handler: callbackHandler(state, results), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case results <- callbackResult{err: fmt.Errorf("sign-in callback server stopped: %w", err)}:
			default:
			}
		}
	}()
	defer func() {
		if err := server.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Failed to stop sign-in callback server", "error", err)
		}
	}()

	oauthCfg := cfg.oauth()
	slog.Info("Open this URL to let rollcall export to Google Sheets",
		"url", oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))

	wait := cfg.Wait
	if wait <= 0 {
		wait = defaultSignInWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var res callbackResult
	select {
	case res = <-results:
	case <-timer.C:
		return nil, fmt.Errorf("no sign-in within %s", wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	token, err := oauthCfg.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	storeToken(cfg.TokenFile, token)
	return token, nil
}

// GetOrCreateToken returns the saved token, refreshed when it has expired,
// and falls back to a browser sign-in when none is saved.
func GetOrCreateToken(ctx context.Context, cfg OAuth2Config) (*oauth2.Token, error) {
	if cfg.TokenFile == "" {
		return AuthenticateOAuth2Interactive(ctx, cfg)
	}
	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		slog.Info("No saved Sheets token, signing in", "file", cfg.TokenFile)
		return AuthenticateOAuth2Interactive(ctx, cfg)
	}
	if token.Valid() {
		return token, nil
	}

	fresh, err := cfg.oauth().TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh Sheets token: %w", err)
	}
	storeToken(cfg.TokenFile, fresh)
	return fresh, nil
}

// LoadToken reads a token written by a previous sign-in.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("malformed token file %s: %w", path, err)
	}
	return token, nil
}

// storeToken persists the token when a path is configured. Write failures
// are logged, not returned.
func storeToken(path string, token *oauth2.Token) {
	if path == "" {
		return
	}
	if err := saveToken(path, token); err != nil {
		slog.Warn("Failed to save Sheets token", "file", path, "error", err)
		return
	}
	slog.Debug("Saved Sheets token", "file", path)
}

func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}
