package http

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/betbot/nadsniper/pkg/ratelimit"
)

// StatusError 非 2xx 响应，保留原始 body 供调用方判断业务错误
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http non-2xx: status=%d body=%s", e.StatusCode, e.Body)
}

// ErrorMessage 尝试读取 body 中的 {"error": "..."} 字段，失败时返回原始 body
func (e *StatusError) ErrorMessage() string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.Body), &body); err == nil && body.Error != "" {
		return body.Error
	}
	return e.Body
}

type Options struct {
	Timeout time.Duration
	Headers map[string]string
	Limiter ratelimit.RateLimiter // 可选
}

// Client 轻量 JSON GET 客户端。重试由调用方决定，这里不做。
type Client struct {
	client  *resty.Client
	limiter ratelimit.RateLimiter
}

func NewClient(opts Options) *Client {
	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	client := resty.New().SetRetryCount(0)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	for k, v := range opts.Headers {
		if strings.TrimSpace(v) != "" {
			client.SetHeader(k, v)
		}
	}
	return &Client{client: client, limiter: opts.Limiter}
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json, text/plain, */*")
	return r
}

// GetJSON 发起 GET 并把 body 解码到 out（out 为 nil 时只检查状态码）
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limit wait")
		}
	}
	resp, err := c.newRequest(ctx).Get(url)
	if _, err := ParseHTTPError(resp, err); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(err, "decode response from %s", url)
	}
	return nil
}

// ParseHTTPError 把传输错误和非 2xx 统一成 error
func ParseHTTPError(resp *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return resp, errors.Wrap(err, "http request")
	}
	if resp == nil {
		return nil, errors.New("http request: empty response")
	}
	if resp.IsSuccess() {
		return resp, nil
	}
	return resp, &StatusError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
}
