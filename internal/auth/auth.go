package auth

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultCallbackAddr is where the loopback server listens for the OAuth
// redirect. A random port is used when it is taken.
const DefaultCallbackAddr = "127.0.0.1:8080"

// AuthorizationTimeout bounds how long Authorize waits for the browser.
const AuthorizationTimeout = 5 * time.Minute

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// autoSaveTokenSource persists every token that differs from the last one
// it handed out, so refreshed tokens survive the run.
type autoSaveTokenSource struct {
	source     oauth2.TokenSource
	tokenStore TokenStore
	lastToken  *oauth2.Token
}

func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}
	return token, nil
}

// callbackHandler answers the OAuth redirect. Requests carrying the wrong
// state are rejected without consuming the flow.
func callbackHandler(state string, codes chan<- string, errs chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}

		if code := q.Get("code"); code != "" {
			fmt.Fprint(w, "<html><body><h1>Authorization successful!</h1><p>You can close this window.</p></body></html>")
			select {
			case codes <- code:
			default:
			}
			return
		}

		msg := q.Get("error")
		if msg == "" {
			msg = "no authorization code received"
		}
		fmt.Fprintf(w, "<html><body><h1>Authorization failed</h1><p>Error: %s</p></body></html>", html.EscapeString(msg))
		select {
		case errs <- fmt.Errorf("authorization error: %s", msg):
		default:
		}
	})
}

func listen(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err == nil {
		return listener, nil
	}
	listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start local server: %w", err)
	}
	return listener, nil
}

// Authorize runs the interactive loopback flow: it prints the consent URL to
// out, waits for the redirect, exchanges the code and saves the token.
func Authorize(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, addr string, out io.Writer) (*oauth2.Token, error) {
	if addr == "" {
		addr = DefaultCallbackAddr
	}
	listener, err := listen(addr)
	if err != nil {
		return nil, err
	}

	redirectURL := fmt.Sprintf("http://%s", listener.Addr().String())
	state := uuid.NewString()
	codes := make(chan string, 1)
	errs := make(chan error, 1)

	server := &http.Server{
		Handler:      callbackHandler(state, codes, errs),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errs <- fmt.Errorf("server error: %w", err):
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	cfg := *oauthConfig
	cfg.RedirectURL = redirectURL
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Fprintf(out, "Starting local server on %s\n", redirectURL)
	if listener.Addr().String() != addr {
		fmt.Fprintf(out, "Note: %s was unavailable. Make sure %s is an authorized redirect URI for your OAuth client.\n", addr, redirectURL)
	}
	fmt.Fprintln(out, "\nPlease visit the following URL to authorize the application:")
	fmt.Fprintln(out, authURL)
	fmt.Fprintln(out, "\nWaiting for authorization...")

	var code string
	select {
	case code = <-codes:
	case err := <-errs:
		return nil, fmt.Errorf("failed to receive authorization code: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(AuthorizationTimeout):
		return nil, fmt.Errorf("authorization timeout: no response received within %s", AuthorizationTimeout)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := tokenStore.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Fprintln(out, "Authorization successful!")
	return token, nil
}

// GetAuthenticatedClient returns an HTTP client authorized by the stored
// token, running Authorize first when none is stored. Refreshed tokens are
// written back to tokenStore.
func GetAuthenticatedClient(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, out io.Writer) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}

	if token == nil {
		token, err = Authorize(ctx, oauthConfig, tokenStore, DefaultCallbackAddr, out)
		if err != nil {
			return nil, err
		}
	}

	return newClient(ctx, oauthConfig.TokenSource(ctx, token), token, tokenStore), nil
}

func newClient(ctx context.Context, source oauth2.TokenSource, token *oauth2.Token, tokenStore TokenStore) *http.Client {
	autoSave := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, source),
		tokenStore: tokenStore,
		lastToken:  token,
	}
	return oauth2.NewClient(ctx, autoSave)
}
