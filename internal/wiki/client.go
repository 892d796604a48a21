package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wfunc/wiki-guess/internal/config"
	"github.com/wfunc/wiki-guess/internal/errors"
)

// Summary 词条摘要
// 对应Wikipedia REST API的page/summary响应中本游戏用到的字段
type Summary struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
}

// Client 词条查询客户端
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient 创建词条查询客户端
func NewClient(cfg *config.WikiConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: timeout},
	}
}

// GetSummary 查询词条摘要
func (c *Client) GetSummary(ctx context.Context, title string) (*Summary, error) {
	if title == "" {
		return nil, errors.New(errors.ErrInvalidParam, "词条标题不能为空")
	}

	endpoint := fmt.Sprintf("%s/page/summary/%s", c.baseURL, url.PathEscape(title))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrWikiLookup)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrWikiLookup)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errors.Newf(errors.ErrWikiPageMissing, "词条: %s", title)
	default:
		return nil, errors.Newf(errors.ErrWikiLookup, "上游返回状态码 %d", resp.StatusCode)
	}

	var summary Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, errors.Wrap(err, errors.ErrWikiLookup, "解析摘要响应失败")
	}

	return &summary, nil
}
