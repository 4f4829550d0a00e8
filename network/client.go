// Package network defines the request-execution capability that the tracker wraps
// and provides an implementation on top of net/http.
//
// A Client fetches a Request in one of four shapes:
//
//   - RequestData returns the raw response body
//   - RequestJSONObject decodes a JSON object into map[string]any
//   - RequestJSONArray decodes a JSON array into []any
//   - RequestDecodable decodes into a caller supplied value
//
// Every call blocks until the response is available or ctx is done.
//
// Example usage:
//
//	client := network.NewHTTPClient(network.WithLogger(logger))
//	req := network.NewRequest("https://api.example.com/status", network.WithTimeout(5*time.Second))
//	status, err := network.Decode[ServiceStatus](ctx, client, req)
package network

import "context"

// Shape names the kind of response a call asks for.
type Shape string

const (
	ShapeData       Shape = "data"
	ShapeJSONObject Shape = "object"
	ShapeJSONArray  Shape = "array"
	ShapeDecodable  Shape = "decode"
)

// Shapes returns every known Shape.
func Shapes() []Shape {
	return []Shape{ShapeData, ShapeJSONObject, ShapeJSONArray, ShapeDecodable}
}

// Client executes requests.
type Client interface {
	// RequestData returns the response body unchanged.
	RequestData(ctx context.Context, req *Request) ([]byte, error)

	// RequestJSONObject decodes the response body as a JSON object.
	RequestJSONObject(ctx context.Context, req *Request) (map[string]any, error)

	// RequestJSONArray decodes the response body as a JSON array.
	RequestJSONArray(ctx context.Context, req *Request) ([]any, error)

	// RequestDecodable decodes the response body into v, which must be a
	// non-nil pointer.
	RequestDecodable(ctx context.Context, req *Request, v any) error
}

// Decode fetches req through c and decodes the response into a T.
func Decode[T any](ctx context.Context, c Client, req *Request) (T, error) {
	var v T
	if err := c.RequestDecodable(ctx, req, &v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
