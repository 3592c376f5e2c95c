package searchconsole

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ReadOnlyScope grants read access to Search Console data.
const ReadOnlyScope = "https://www.googleapis.com/auth/webmasters.readonly"

// NewAuthorizedHTTPClient returns an http.Client that attaches OAuth2 tokens
// from a service-account key file, or from application default credentials
// when credentialsFile is empty.
func NewAuthorizedHTTPClient(ctx context.Context, credentialsFile string, timeout time.Duration) (*http.Client, error) {
	ts, err := tokenSource(ctx, credentialsFile)
	if err != nil {
		return nil, err
	}
	hc := oauth2.NewClient(ctx, ts)
	hc.Timeout = timeout
	return hc, nil
}

func tokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		ts, err := google.DefaultTokenSource(ctx, ReadOnlyScope)
		if err != nil {
			return nil, eris.Wrap(err, "searchconsole: default credentials")
		}
		return ts, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, eris.Wrapf(err, "searchconsole: read credentials %s", credentialsFile)
	}
	cfg, err := google.JWTConfigFromJSON(data, ReadOnlyScope)
	if err != nil {
		return nil, eris.Wrap(err, "searchconsole: parse service account key")
	}
	return cfg.TokenSource(ctx), nil
}
