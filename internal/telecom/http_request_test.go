package telecom

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atworkflow/engine/internal/runtime"
)

// upstreamURL is a public-looking target that passes guardAgainstSSRF;
// upstreamClient routes its connections to the loopback test server.
const upstreamURL = "http://upstream.example.com/x"

func upstreamClient(srv *httptest.Server) *http.Client {
	c := newHTTPClient()
	c.Transport = &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, network, srv.Listener.Addr().String())
		},
	}
	return c
}

func TestHTTPRequestHandler_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	handler := httpRequestHandler(upstreamClient(srv))
	in := runtime.HandlerInput{Config: map[string]interface{}{"method": "GET", "url": upstreamURL}}
	out := handler(context.Background(), &runtime.ExecutionContext{}, in)

	assert.Equal(t, "success", out.Handle)
	assert.Equal(t, http.StatusOK, out.Output["status_code"])
}

func TestHTTPRequestHandler_MissingURL(t *testing.T) {
	handler := httpRequestHandler(newHTTPClient())
	out := handler(context.Background(), &runtime.ExecutionContext{}, runtime.HandlerInput{Config: map[string]interface{}{}})
	require.NotNil(t, out.Err)
	assert.Equal(t, "missing_url", out.Err.Code)
}

func TestHTTPRequestHandler_RejectsPrivateHost(t *testing.T) {
	handler := httpRequestHandler(newHTTPClient())
	in := runtime.HandlerInput{Config: map[string]interface{}{"method": "GET", "url": "http://127.0.0.1:9/x"}}
	out := handler(context.Background(), &runtime.ExecutionContext{}, in)
	require.NotNil(t, out.Err)
	assert.Equal(t, "url_not_allowed", out.Err.Code)
}

func TestHTTPRequestHandler_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	handler := httpRequestHandler(upstreamClient(srv))
	in := runtime.HandlerInput{Config: map[string]interface{}{"method": "GET", "url": upstreamURL}}
	out := handler(context.Background(), &runtime.ExecutionContext{}, in)
	require.NotNil(t, out.Err)
	assert.Equal(t, runtime.ErrorTypeTransient, out.Err.Type)
}

func TestHTTPRequestHandler_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	handler := httpRequestHandler(upstreamClient(srv))
	in := runtime.HandlerInput{Config: map[string]interface{}{"method": "GET", "url": upstreamURL}}
	out := handler(context.Background(), &runtime.ExecutionContext{}, in)
	require.NotNil(t, out.Err)
	assert.Equal(t, runtime.ErrorTypePermanent, out.Err.Type)
}

func TestHTTPRequestHandler_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	handler := httpRequestHandler(upstreamClient(srv))
	in := runtime.HandlerInput{Config: map[string]interface{}{"method": "GET", "url": upstreamURL}}
	out := handler(context.Background(), &runtime.ExecutionContext{}, in)
	require.NotNil(t, out.Err)
	assert.Equal(t, runtime.ErrorTypeRateLimit, out.Err.Type)
}

func TestGuardAgainstSSRF(t *testing.T) {
	assert.Error(t, guardAgainstSSRF("ftp://example.com"))
	assert.Error(t, guardAgainstSSRF("http://localhost/x"))
	assert.Error(t, guardAgainstSSRF("http://127.0.0.1/x"))
	assert.Error(t, guardAgainstSSRF("http://192.168.1.1/x"))
	assert.NoError(t, guardAgainstSSRF("https://api.example.com/x"))
}
