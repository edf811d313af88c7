package client

import (
	"os"

	"github.com/jarcoal/httpmock"

	"github.com/keboola/go-fetch/pkg/client/trace"
)

// TestVerboseEnv enables request dumps of clients created by NewTestClient, if it is set to "true".
const TestVerboseEnv = "FETCH_TEST_VERBOSE"

// NewTestClient creates a Client with fast retries for tests.
// Requests and responses are dumped to stdout if the TestVerboseEnv is set, secret headers are masked.
func NewTestClient() Client {
	c := New().WithRetry(TestingRetry())
	if os.Getenv(TestVerboseEnv) == "true" {
		c = c.AndTrace(trace.DumpTracer(os.Stdout))
	}
	return c
}

// NewMockedClient creates a test Client with a mocked transport, register responders to the returned transport.
func NewMockedClient() (Client, *httpmock.MockTransport) {
	transport := httpmock.NewMockTransport()
	return NewTestClient().WithTransport(transport), transport
}
