//  Copyright 2015 by Leipzig University Library, http://ub.uni-leipzig.de
//                    The Finc Authors, http://finc.info
//                    Martin Czygan, <martin.czygan@uni-leipzig.de>
//
// This file is part of some open source application.
//
// Some open source application is free software: you can redistribute
// it and/or modify it under the terms of the GNU General Public
// License as published by the Free Software Foundation, either
// version 3 of the License, or (at your option) any later version.
//
// Some open source application is distributed in the hope that it will
// be useful, but WITHOUT ANY WARRANTY; without even the implied warranty
// of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Foobar.  If not, see <http://www.gnu.org/licenses/>.
//
// @license GPL-3.0+ <http://spdx.org/licenses/GPL-3.0+>
//
package oaipoll

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"github.com/sethgrid/pester"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// HttpRequestDoer lets us use pester, http.DefaultClient or other HTTP client
// implementations interchangably.
type HttpRequestDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ClientConfig configures the default resilient HTTP client.
type ClientConfig struct {
	// Timeout per HTTP request.
	Timeout time.Duration
	// MaxRetries is the number of HTTP attempts pester makes.
	MaxRetries int
	// Rate limits requests per second, zero means no limit.
	Rate float64
	// UserAgent overrides the package default.
	UserAgent string
}

// DefaultClientConfig should suffice for most use cases.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:    5 * time.Minute,
		MaxRetries: 8,
	}
}

// Client is a simple client, that can turn a OAI request into a raw payload
// and a raw payload into a response.
type Client struct {
	// doer is a delegate for HTTP requests.
	doer      HttpRequestDoer
	limiter   *rate.Limiter
	userAgent string
}

// NewClientDoer creates a new OAI client with a user supplied http client,
// e.g. pester.Client, http.DefaultClient.
func NewClientDoer(doer HttpRequestDoer) *Client {
	return &Client{doer: doer, userAgent: UserAgent}
}

// NewClient creates a client backed by pester, retrying failed HTTP requests
// with exponential backoff. Retries are logged as warnings.
func NewClient(cfg ClientConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := pester.New()
	c.Timeout = cfg.Timeout
	c.MaxRetries = cfg.MaxRetries
	c.Backoff = pester.ExponentialBackoff
	c.RetryOnHTTP429 = true
	c.LogHook = func(e pester.ErrEntry) {
		log.Warn("http attempt failed",
			zap.String("url", e.URL),
			zap.Int("attempt", e.Attempt),
			zap.Error(e.Err))
	}
	client := NewClientDoer(c)
	if cfg.UserAgent != "" {
		client.userAgent = cfg.UserAgent
	}
	client.SetRate(cfg.Rate)
	return client
}

// SetRate limits the client to rps requests per second. Zero or less
// disables the limit.
func (c *Client) SetRate(rps float64) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Fetch executes a single HTTP request and returns the payload verbatim.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	link, err := req.URL()
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("User-Agent", c.userAgent)
	resp, err := c.doer.Do(hreq)
	if err != nil {
		return nil, &TransportError{URL: link, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &TransportError{URL: link, StatusCode: resp.StatusCode}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: link, Err: err}
	}
	return b, nil
}

// Do takes an OAI request and turns it into at most one single OAI response.
// Protocol errors are part of the response, not of the returned error.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	b, err := c.Fetch(ctx, req)
	if err != nil {
		return Response{}, err
	}
	return Decode(b)
}

// Decode parses a raw payload. Payloads, that are not well-formed or have
// another root element than OAI-PMH, yield a *DecodeError.
func Decode(payload []byte) (Response, error) {
	var response Response
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&response); err != nil {
		return response, &DecodeError{Err: err}
	}
	return response, nil
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func([]byte) (Response, error)

// Decode calls f.
func (f DecoderFunc) Decode(b []byte) (Response, error) { return f(b) }
