package httpclient

import "context"

// Response is a minimal HTTP response contract.
type Response interface {
	Body() []byte
	StatusCode() int
}

// Client abstracts the bot API calls so notifiers can be tested against fakes.
type Client interface {
	Get(ctx context.Context, url string, query map[string]string) (Response, error)
	PostForm(ctx context.Context, url string, form map[string]string) (Response, error)
}
