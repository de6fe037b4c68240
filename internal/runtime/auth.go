package runtime

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mbrt/gmailctl/cmd/gmailctl/localcred"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	gc "github.com/joshsymonds/inboxtally/internal/gmail"
)

const (
	credentialsFile = "credentials.json"
	tokenFile       = "token.json"
)

// Provider selects where OAuth credentials come from.
type Provider string

const (
	// ProviderOAuth reads credentials.json and token.json from the credentials
	// directory and runs the consent flow on first use.
	ProviderOAuth Provider = "oauth"
	// ProviderGmailctl reuses an initialized gmailctl configuration directory.
	ProviderGmailctl Provider = "gmailctl"
)

// AuthOptions configures NewGmailClient.
type AuthOptions struct {
	Dir      string
	Provider Provider
	// In and Out carry the one-time authorization code prompt.
	In  io.Reader
	Out io.Writer
}

func NewGmailClient(ctx context.Context, opts AuthOptions) (gc.Client, error) {
	var svc *gmail.Service
	var err error
	switch opts.Provider {
	case ProviderGmailctl:
		svc, err = (localcred.Provider{}).ServiceWithScopes(ctx, opts.Dir, gmail.GmailReadonlyScope)
	case ProviderOAuth, "":
		store := CredentialStore{Dir: opts.Dir, In: opts.In, Out: opts.Out}
		svc, err = store.Service(ctx)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewGoogleAPIClient(svc), nil
}

// CredentialStore owns the client secret and the persisted token.
type CredentialStore struct {
	Dir string
	In  io.Reader
	Out io.Writer
}

// Service returns a read-only Gmail service, exchanging an authorization code
// for a token when none has been stored yet.
func (c CredentialStore) Service(ctx context.Context) (*gmail.Service, error) {
	conf, err := c.Config()
	if err != nil {
		return nil, err
	}
	tok, err := c.LoadToken()
	if errors.Is(err, os.ErrNotExist) {
		tok, err = c.exchange(ctx, conf)
		if err != nil {
			return nil, err
		}
		if saveErr := c.SaveToken(tok); saveErr != nil {
			return nil, saveErr
		}
	} else if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(conf.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// Config parses the client secret file.
func (c CredentialStore) Config() (*oauth2.Config, error) {
	path := filepath.Join(c.Dir, credentialsFile)
	b, err := os.ReadFile(path) // #nosec G304 - path is under the configured credentials dir
	if err != nil {
		return nil, fmt.Errorf("read client secret %s: %w", path, err)
	}
	conf, err := google.ConfigFromJSON(b, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret %s: %w", path, err)
	}
	return conf, nil
}

// LoadToken reads the persisted token. A missing file surfaces as
// os.ErrNotExist.
func (c CredentialStore) LoadToken() (*oauth2.Token, error) {
	path := filepath.Join(c.Dir, tokenFile)
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("open token %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	tok := &oauth2.Token{}
	if decodeErr := json.NewDecoder(f).Decode(tok); decodeErr != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, decodeErr)
	}
	return tok, nil
}

func (c CredentialStore) SaveToken(tok *oauth2.Token) error {
	if err := os.MkdirAll(c.Dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	path := filepath.Join(c.Dir, tokenFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create token %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if encodeErr := json.NewEncoder(f).Encode(tok); encodeErr != nil {
		return fmt.Errorf("encode token: %w", encodeErr)
	}
	return nil
}

func (c CredentialStore) exchange(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	in, out := c.In, c.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	url := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	if _, err := fmt.Fprintf(out, "Open the following link in your browser, then paste the authorization code:\n%s\n> ", url); err != nil {
		return nil, fmt.Errorf("write auth prompt: %w", err)
	}
	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}
