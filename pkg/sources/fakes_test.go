package sources

import (
	"context"
	"fmt"

	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/httpclient"
)

// fakeResponse implements httpclient.Response for tests.
type fakeResponse struct {
	body   []byte
	status int
}

func (r fakeResponse) Body() []byte    { return r.body }
func (r fakeResponse) StatusCode() int { return r.status }

// fakeHTTPClient serves canned responses keyed by URL.
type fakeHTTPClient struct {
	responses map[string]fakeResponse
	errs      map[string]error
	requests  []string
}

func newFakeHTTPClient() *fakeHTTPClient {
	return &fakeHTTPClient{
		responses: make(map[string]fakeResponse),
		errs:      make(map[string]error),
	}
}

func (c *fakeHTTPClient) serve(url, body string) {
	c.responses[url] = fakeResponse{body: []byte(body), status: 200}
}

func (c *fakeHTTPClient) serveStatus(url string, status int, body string) {
	c.responses[url] = fakeResponse{body: []byte(body), status: status}
}

func (c *fakeHTTPClient) fail(url string, err error) {
	c.errs[url] = err
}

func (c *fakeHTTPClient) Get(_ context.Context, url string, _ map[string]string) (httpclient.Response, error) {
	c.requests = append(c.requests, url)
	if err, ok := c.errs[url]; ok {
		return nil, err
	}
	if resp, ok := c.responses[url]; ok {
		return resp, nil
	}
	return nil, fmt.Errorf("no canned response for %s", url)
}

func (c *fakeHTTPClient) Head(ctx context.Context, url string, headers map[string]string) (httpclient.Response, error) {
	return c.Get(ctx, url, headers)
}
