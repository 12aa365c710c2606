// Package nac generates validation data by running a NAC session against
// Apple's identity service: fetch the validation certificate, create a
// session, exchange the session request for a session response, and finally
// sign an empty message.
package nac

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/brave-experiments/nacrelay/absd"
	"howett.net/plist"
)

const (
	// DefaultCertURL points to the plist that contains the validation
	// certificate.
	DefaultCertURL = "http://static.ess.apple.com/identity/validation/cert-1.0.plist"
	// DefaultInitURL is the endpoint that turns a session request into a
	// session response.
	DefaultInitURL = "https://identity.ess.apple.com/WebObjects/TDIdentityService.woa/wa/initializeValidation"

	httpTimeout = time.Second * 30
	// maxBodySize caps the size of the HTTP responses that we read.
	maxBodySize = 1 << 20
)

var (
	l = log.New(os.Stderr, "nac: ", log.Ldate|log.Ltime|log.LUTC|log.Lshortfile)

	errBadStatus   = errors.New("unexpected HTTP status code")
	errMissingCert = errors.New("plist contains no certificate")
	errMissingInfo = errors.New("plist contains no session info")
)

// NAC is implemented by absd.Client.
type NAC interface {
	Init(cert []byte) (absd.Context, []byte, error)
	KeyEstablishment(ctx absd.Context, sessionResponse []byte) error
	Sign(ctx absd.Context, data []byte) ([]byte, error)
}

var _ NAC = (*absd.Client)(nil)

type certsResponse struct {
	Cert []byte `plist:"cert"`
}

type sessionInfoRequest struct {
	SessionInfoRequest []byte `plist:"session-info-request"`
}

type sessionInfoResponse struct {
	SessionInfo []byte `plist:"session-info"`
}

// Generator generates validation data.
type Generator struct {
	Client  *http.Client
	NAC     NAC
	CertURL string
	InitURL string
}

// NewGenerator returns a generator that talks to Apple's production
// endpoints.  Unless verifyTLS is set, the generator does not verify the
// certificates of these endpoints.
func NewGenerator(n NAC, verifyTLS bool) *Generator {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec
		}
	}
	return &Generator{
		Client: &http.Client{
			Transport: transport,
			Timeout:   httpTimeout,
		},
		NAC:     n,
		CertURL: DefaultCertURL,
		InitURL: DefaultInitURL,
	}
}

// Generate runs a new NAC session and returns the resulting validation data.
func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	var certs certsResponse
	if err := g.do(ctx, http.MethodGet, g.CertURL, nil, &certs); err != nil {
		return nil, fmt.Errorf("failed to fetch validation certificate: %w", err)
	}
	if len(certs.Cert) == 0 {
		return nil, errMissingCert
	}
	l.Printf("Fetched %d-byte validation certificate.", len(certs.Cert))

	nacCtx, sessionReq, err := g.NAC.Init(certs.Cert)
	if err != nil {
		return nil, err
	}

	reqBody, err := plist.Marshal(&sessionInfoRequest{SessionInfoRequest: sessionReq}, plist.XMLFormat)
	if err != nil {
		return nil, err
	}
	var info sessionInfoResponse
	if err := g.do(ctx, http.MethodPost, g.InitURL, reqBody, &info); err != nil {
		return nil, fmt.Errorf("failed to initialize validation: %w", err)
	}
	if len(info.SessionInfo) == 0 {
		return nil, errMissingInfo
	}

	if err := g.NAC.KeyEstablishment(nacCtx, info.SessionInfo); err != nil {
		return nil, err
	}

	data, err := g.NAC.Sign(nacCtx, []byte{})
	if err != nil {
		return nil, err
	}
	l.Printf("Generated %d bytes of validation data.", len(data))
	return data, nil
}

// do sends an HTTP request with the given body and decodes the plist that
// comes back into v.
func (g *Generator) do(ctx context.Context, method, url string, body []byte, v interface{}) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", errBadStatus, resp.StatusCode)
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return err
	}
	if _, err := plist.Unmarshal(respBody, v); err != nil {
		return err
	}
	return nil
}
