package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/dromio/internal/store"
)

// runHTTP fires one request and maps the response onto an exit code: any 2xx
// status is 0, everything else is 1. The response body is the run output
// either way, so failures keep their diagnostics.
func (e *Exec) runHTTP(ctx context.Context, snap *store.ExecutableConfigSnapshot) (store.CommandRunOutput, error) {
	var body io.Reader
	if snap.Meta.Body != nil {
		body = strings.NewReader(*snap.Meta.Body)
	}
	req, err := http.NewRequestWithContext(ctx, snap.Meta.Method, snap.Meta.URL, body)
	if err != nil {
		return store.CommandRunOutput{}, fmt.Errorf("%w: build request: %v", store.ErrExecution, err)
	}
	for k, v := range snap.Meta.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return store.CommandRunOutput{}, fmt.Errorf("%w: %v", store.ErrExecution, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedOutput+1))
	out := store.CommandRunOutput{}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		out.Output = truncate(respBody)
		return out, nil
	}
	out.ExitCode = 1
	out.Output = truncate(respBody)
	status := resp.Status
	out.ErrorOutput = &status
	return out, nil
}
