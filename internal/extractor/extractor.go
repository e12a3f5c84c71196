// Package extractor wraps the external PDF-to-text extraction service
// (spec.md "Out of scope: PDF→text extraction (external library)"). It is
// consumed only through its Page-array contract; the Ingest Orchestrator
// never reasons about the underlying document format.
package extractor

import (
	"context"
	"fmt"
	"time"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/httpclient"
	"github.com/hsn0918/filingtree/internal/tree"
)

const (
	serviceName    = "extractor"
	defaultTimeout = 30 * time.Second
	pollInterval   = 2 * time.Second
	pollTimeout    = 5 * time.Minute
)

// uploadResponse carries the job ID the parsing service assigns to an
// uploaded PDF.
type uploadResponse struct {
	UID string `json:"uid"`
}

type statusResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail"`
	Result *struct {
		Pages []struct {
			PageIdx int    `json:"page_idx"`
			Text    string `json:"text"`
		} `json:"pages"`
	} `json:"result"`
}

// Extractor submits a PDF to the external parsing service and polls until
// a per-page text array is available.
type Extractor struct {
	client *httpclient.Client
}

// New constructs an Extractor pointed at the configured parsing service.
func New(cfg config.ExtractorConfig) *Extractor {
	return &Extractor{client: httpclient.New(serviceName, cfg.BaseURL, cfg.APIKey, defaultTimeout)}
}

// Extract uploads raw PDF bytes and returns per-page text in page order,
// 1-based (spec.md §3 Page).
func (e *Extractor) Extract(ctx context.Context, pdf []byte) ([]tree.Page, error) {
	var upload uploadResponse
	if _, err := e.client.Post("/parse", pdf, &upload); err != nil {
		return nil, fmt.Errorf("extractor: upload: %w", err)
	}

	status, err := e.waitForResult(ctx, upload.UID)
	if err != nil {
		return nil, err
	}

	pages := make([]tree.Page, 0, len(status.Result.Pages))
	for _, p := range status.Result.Pages {
		pages = append(pages, tree.Page{Number: p.PageIdx + 1, Text: p.Text})
	}
	return pages, nil
}

func (e *Extractor) waitForResult(ctx context.Context, uid string) (*statusResponse, error) {
	deadline := time.Now().Add(pollTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var status statusResponse
		if _, err := e.client.Post("/status", map[string]string{"uid": uid}, &status); err != nil {
			return nil, fmt.Errorf("extractor: poll status: %w", err)
		}

		switch status.Status {
		case "completed":
			if status.Result == nil {
				return nil, fmt.Errorf("extractor: completed with no result")
			}
			return &status, nil
		case "failed":
			return nil, fmt.Errorf("extractor: parsing failed: %s", status.Detail)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("extractor: timed out waiting for uid %s", uid)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
