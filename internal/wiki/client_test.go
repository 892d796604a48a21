package wiki

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/wiki-guess/internal/config"
	apperrors "github.com/wfunc/wiki-guess/internal/errors"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&config.WikiConfig{
		BaseURL:   baseURL,
		Timeout:   time.Second,
		UserAgent: "wiki-guess-test/1.0",
	})
}

// TestGetSummary 测试正常查询词条摘要
func TestGetSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/page/summary/Great_Wall", r.URL.Path)
		assert.Equal(t, "wiki-guess-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"Great Wall","description":"Fortification","extract":"The Great Wall of China..."}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	summary, err := c.GetSummary(context.Background(), "Great_Wall")
	require.NoError(t, err)
	assert.Equal(t, "Great Wall", summary.Title)
	assert.Equal(t, "Fortification", summary.Description)
	assert.NotEmpty(t, summary.Extract)
}

// TestGetSummary_EscapesTitle 测试标题中的特殊字符被转义
func TestGetSummary_EscapesTitle(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"title":"AC/DC"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetSummary(context.Background(), "AC/DC")
	require.NoError(t, err)
	assert.Equal(t, "/page/summary/AC%2FDC", gotPath)
}

// TestGetSummary_NotFound 测试词条不存在
func TestGetSummary_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetSummary(context.Background(), "No_Such_Page")
	assert.True(t, apperrors.Is(err, apperrors.ErrWikiPageMissing))
}

// TestGetSummary_UpstreamError 测试上游故障
func TestGetSummary_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetSummary(context.Background(), "Anything")
	assert.True(t, apperrors.Is(err, apperrors.ErrWikiLookup))
}

// TestGetSummary_EmptyTitle 测试空标题
func TestGetSummary_EmptyTitle(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	_, err := c.GetSummary(context.Background(), "")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidParam))
}

// TestGetSummary_ContextCanceled 测试请求随上下文取消
func TestGetSummary_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	c := newTestClient(srv.URL)
	_, err := c.GetSummary(ctx, "Slow_Page")
	assert.True(t, apperrors.Is(err, apperrors.ErrWikiLookup))
}

// TestGetSummary_BadJSON 测试响应解析失败
func TestGetSummary_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.GetSummary(context.Background(), "Broken")
	assert.True(t, apperrors.Is(err, apperrors.ErrWikiLookup))
}
