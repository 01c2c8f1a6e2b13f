// Package moderation 封装对外部内容审核服务的调用。
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient 通过 HTTP 调用外部审核服务对媒体 URL 进行判定。
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient 创建 HTTPClient 实例。
func NewHTTPClient(endpoint string, timeout time.Duration) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("moderation endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type classifyRequest struct {
	URL string `json:"url"`
}

type classifyResponse struct {
	Violation bool `json:"violation"`
}

// Classify 实现 worker.ModerationClient。
// 返回 true 表示审核服务判定内容违规。
func (c *HTTPClient) Classify(ctx context.Context, url string) (bool, error) {
	body, err := json.Marshal(classifyRequest{URL: url})
	if err != nil {
		return false, fmt.Errorf("moderation: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("moderation: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("moderation: call classification service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("moderation: classification service returned status %d", resp.StatusCode)
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("moderation: decode response: %w", err)
	}

	logrus.WithFields(logrus.Fields{"url": url, "violation": result.Violation}).
		Debug("Moderation classification completed")
	return result.Violation, nil
}
