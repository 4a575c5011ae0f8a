package earthengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nao1215/forestloss/internal/loss"
	"google.golang.org/api/googleapi"
)

// DefaultEndpoint is the root URL of the Earth Engine REST API.
const DefaultEndpoint = "https://earthengine.googleapis.com/"

// OAuth2 scopes requested for the session.
const (
	earthengineScope   = "https://www.googleapis.com/auth/earthengine"
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
)

// valueNode is one node of an expression graph. Exactly one field is set.
type valueNode struct {
	ConstantValue           any                 `json:"constantValue,omitempty"`
	ValueReference          string              `json:"valueReference,omitempty"`
	FunctionInvocationValue *functionInvocation `json:"functionInvocationValue,omitempty"`
}

type functionInvocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]valueNode `json:"arguments"`
}

// expression is a graph of values evaluated at Result.
type expression struct {
	Result string               `json:"result"`
	Values map[string]valueNode `json:"values"`
}

type computeValueRequest struct {
	Expression *expression `json:"expression"`
}

type computeValueResponse struct {
	Result any `json:"result"`
}

type thumbnail struct {
	Name       string      `json:"name,omitempty"`
	Expression *expression `json:"expression,omitempty"`
	FileFormat string      `json:"fileFormat,omitempty"`
}

// restClient issues Earth Engine REST calls on an authenticated client.
type restClient struct {
	http     *http.Client
	endpoint string
}

func (c *restClient) url(path string) string {
	return strings.TrimSuffix(c.endpoint, "/") + "/v1/" + path
}

// postJSON sends in to path and decodes the response into out.
func (c *restClient) postJSON(ctx context.Context, op, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %s: encode request: %w", loss.ErrComputationFailed, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %w", loss.ErrComputationFailed, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer res.Body.Close()

	if err := googleapi.CheckResponse(res); err != nil {
		return classify(op, err)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", loss.ErrComputationFailed, op, err)
	}
	return nil
}

// getRaw downloads path and returns at most limit bytes of the body.
func (c *restClient) getRaw(ctx context.Context, op, path string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: build request: %w", loss.ErrComputationFailed, op, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, classify(op, err)
	}
	defer res.Body.Close()

	if err := googleapi.CheckResponse(res); err != nil {
		return nil, classify(op, err)
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return nil, classify(op, err)
	}
	return data, nil
}
