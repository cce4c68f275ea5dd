// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Package transport provides the blocking client used by the CARP runtime to
// exchange wire messages with an endpoint.
//
// The [Client] interface separates transport outcomes from call semantics: a
// Client reports an error only for I/O-level failures, and classifies peer
// status codes into the outcome classes the runtime maps onto its error
// taxonomy. The [HTTP] implementation carries messages as HTTP POST bodies.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/creachadair/carp/fingerprint"
	"github.com/creachadair/carp/wire"
	"go.uber.org/zap"
)

// An Outcome classifies the status reported by the remote endpoint.
type Outcome int

const (
	Success       Outcome = iota // call accepted, response body present
	NoBody                       // call accepted, empty response body
	NotFound                     // receiver withdrawn or unknown at the peer
	Unprocessable                // caller-supplied status update was invalid
	Internal                     // uncaught failure at the peer
	Other                        // any other status
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "SUCCESS"
	case NoBody:
		return "NO_BODY"
	case NotFound:
		return "NOT_FOUND"
	case Unprocessable:
		return "UNPROCESSABLE"
	case Internal:
		return "INTERNAL"
	case Other:
		return "OTHER"
	default:
		return fmt.Sprintf("outcome %d", int(o))
	}
}

// A Reply is the classified result of posting a request to an endpoint.
type Reply struct {
	Outcome     Outcome // the outcome class of the exchange
	Status      int     // the underlying protocol status code
	ContentType string  // the media type tag of the body, e.g. "application/json"
	Body        []byte  // the raw reply body, nil if empty
}

// A Client posts a request message to an endpoint and reports the classified
// reply. An error is reported only for transport-level failures; peer status
// outcomes are reported in the Reply. Implementations must be safe for
// concurrent use by multiple goroutines.
type Client interface {
	Post(ctx context.Context, endpoint string, req *wire.Request) (*Reply, error)
}

// HTTP is a Client that exchanges messages with an endpoint over HTTP POST.
// A zero HTTP is ready for use with default settings.
type HTTP struct {
	// Client is the underlying HTTP client. If nil, http.DefaultClient is used.
	Client *http.Client

	// ContentType selects the request body serialization.
	// If empty, wire.ContentJSON is used.
	ContentType string

	// Prints, if non-nil, receives the fingerprint of the peer's TLS
	// certificate as a side effect of each exchange over a TLS connection.
	Prints fingerprint.Repository

	// PrintAlgo names the digest algorithm for recorded certificate prints.
	// If empty, "sha2-256" is used.
	PrintAlgo string

	// Log, if non-nil, receives debug logging for exchanges.
	Log *zap.Logger
}

func (h *HTTP) httpClient() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTP) contentType() string {
	if h.ContentType != "" {
		return h.ContentType
	}
	return wire.ContentJSON
}

func (h *HTTP) printAlgo() string {
	if h.PrintAlgo != "" {
		return h.PrintAlgo
	}
	return "sha2-256"
}

func (h *HTTP) logger() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

// Post implements a method of the [Client] interface.
func (h *HTTP) Post(ctx context.Context, endpoint string, req *wire.Request) (*Reply, error) {
	ctype := h.contentType()
	body, err := wire.Marshal(ctype, req.Encode())
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	hreq.Header.Set("Content-Type", ctype)
	hreq.Header.Set("Accept", wire.ContentJSON+", "+wire.ContentMsgpack)

	hrsp, err := h.httpClient().Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hrsp.Body.Close()

	h.recordPeerPrint(hreq.URL, hrsp)

	data, err := io.ReadAll(hrsp.Body)
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	if len(data) == 0 {
		data = nil
	}
	rep := &Reply{
		Outcome:     classify(hrsp.StatusCode, len(data)),
		Status:      hrsp.StatusCode,
		ContentType: mediaType(hrsp.Header.Get("Content-Type")),
		Body:        data,
	}
	h.logger().Debug("carp exchange",
		zap.String("endpoint", endpoint),
		zap.String("call", req.Type),
		zap.Int("status", rep.Status),
		zap.Stringer("outcome", rep.Outcome),
		zap.Int("bytes", len(data)),
	)
	return rep, nil
}

// recordPeerPrint records the fingerprint of the peer's TLS certificate, if
// the exchange was carried over TLS and a repository is configured.
func (h *HTTP) recordPeerPrint(u *url.URL, hrsp *http.Response) {
	if h.Prints == nil || hrsp.TLS == nil || len(hrsp.TLS.PeerCertificates) == 0 {
		return
	}
	fp, err := fingerprint.FromCertificate(h.printAlgo(), hrsp.TLS.PeerCertificates[0])
	if err != nil {
		h.logger().Warn("peer certificate digest failed", zap.Error(err))
		return
	}
	h.Prints.Record(peerOf(u), fp)
}

// peerOf derives the peer identity from a request URL, applying the default
// port for the scheme when the URL does not name one.
func peerOf(u *url.URL) fingerprint.Peer {
	port := 0
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	} else if u.Scheme == "https" {
		port = 443
	} else if u.Scheme == "http" {
		port = 80
	}
	return fingerprint.Peer{Host: u.Hostname(), Port: port}
}

func classify(status, bodyLen int) Outcome {
	switch status {
	case http.StatusNotFound:
		return NotFound
	case http.StatusUnprocessableEntity:
		return Unprocessable
	case http.StatusInternalServerError:
		return Internal
	}
	if status >= 200 && status < 300 {
		if bodyLen == 0 {
			return NoBody
		}
		return Success
	}
	return Other
}

func mediaType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil {
		return header
	}
	return mt
}
