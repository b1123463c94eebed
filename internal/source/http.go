package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

// pageIndex is the JSON document an HTTP source serves for a chapter.
type pageIndex struct {
	Pages []string `json:"pages"`
}

// HTTP is a content provider backed by plain HTTP: the chapter URL serves a
// JSON page index and each page is a direct image GET.
type HTTP struct {
	id     int64
	name   string
	client *http.Client
}

var _ download.Source = (*HTTP)(nil)

// NewHTTP creates an HTTP source. A nil client gets a 30s timeout default.
func NewHTTP(id int64, name string, client *http.Client) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{id: id, name: name, client: client}
}

func (s *HTTP) ID() int64 {
	return s.id
}

func (s *HTTP) Name() string {
	return s.name
}

// FetchPageList downloads and decodes the chapter's page index.
func (s *HTTP) FetchPageList(ctx context.Context, chapter download.Chapter) ([]*download.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, chapter.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page list request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page list request returned %d", resp.StatusCode)
	}

	var index pageIndex
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("decode page list: %w", err)
	}

	pages := make([]*download.Page, len(index.Pages))
	for i, ref := range index.Pages {
		pages[i] = &download.Page{
			Index:     i,
			RemoteRef: ref,
			Status:    download.PagePending,
		}
	}
	return pages, nil
}

// FetchImage streams one page's bytes. Each call issues a fresh request, so
// it is safe to retry.
func (s *HTTP) FetchImage(ctx context.Context, page *download.Page) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.RemoteRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build image request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("image request returned %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
