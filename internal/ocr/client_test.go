// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/markit-mistral/internal/httputil"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

// fakeMistral is an httptest stand-in for the Mistral files and OCR endpoints.
type fakeMistral struct {
	t *testing.T

	mu       sync.Mutex
	calls    []string
	ocrBody  ocrRequest
	ocrFails []int
	pages    []ocrPage
}

func newFakeMistral(t *testing.T, pages []ocrPage) (*fakeMistral, *httptest.Server) {
	t.Helper()
	f := &fakeMistral{t: t, pages: pages}
	ts := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(ts.Close)
	return f, ts
}

func (f *fakeMistral) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("Authorization") != "Bearer test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Unauthorized"}`))
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
		require.NoError(f.t, r.ParseMultipartForm(1<<20))
		assert.Equal(f.t, "ocr", r.FormValue("purpose"))
		file, hdr, err := r.FormFile("file")
		require.NoError(f.t, err)
		data, _ := io.ReadAll(file)
		assert.True(f.t, strings.HasPrefix(string(data), "%PDF-"))
		json.NewEncoder(w).Encode(uploadResponse{ID: "file-123", Filename: hdr.Filename})

	case r.Method == http.MethodGet && r.URL.Path == "/v1/files/file-123/url":
		json.NewEncoder(w).Encode(signedURLResponse{URL: "https://signed.example/file-123"})

	case r.Method == http.MethodDelete && r.URL.Path == "/v1/files/file-123":
		w.Write([]byte(`{"id":"file-123","deleted":true}`))

	case r.Method == http.MethodPost && r.URL.Path == "/v1/ocr":
		if len(f.ocrFails) > 0 {
			status := f.ocrFails[0]
			f.ocrFails = f.ocrFails[1:]
			w.WriteHeader(status)
			w.Write([]byte(`{"message":"try later"}`))
			return
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.ocrBody))
		json.NewEncoder(w).Encode(ocrResponse{Pages: f.pages, Model: f.ocrBody.Model})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeMistral) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testClient(baseURL string) *Client {
	c := New(types.OCRConfig{
		HTTPConfig: types.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test"},
		APIKey:     "test-key",
		BaseURL:    baseURL,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, true, nil)
	c.Retry.Sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func pdfInput() types.InputDescriptor {
	return types.InputDescriptor{Name: "doc.pdf", Data: []byte("%PDF-1.4\n"), Kind: types.InputPDF, MIMEType: "application/pdf", Size: 9}
}

func TestSubmit_PagesSortedAndImagesDecoded(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(pngBytes)
	pages := []ocrPage{
		{Index: 2, Markdown: "third"},
		{Index: 0, Markdown: "first ![img-0.jpeg](img-0.jpeg)", Images: []ocrImage{
			{ID: "img-0.jpeg", ImageBase64: "data:image/jpeg;base64," + encoded},
		}},
		{Index: 1, Markdown: "second ![img-1.png](img-1.png)", Images: []ocrImage{
			{ID: "img-1.png", ImageBase64: encoded},
			{ID: "img-empty", ImageBase64: ""},
		}},
	}
	f, ts := newFakeMistral(t, pages)
	c := testClient(ts.URL)

	got, err := c.Submit(context.Background(), types.InputDescriptor{
		Name: "scan.png", Data: pngBytes, Kind: types.InputImage, MIMEType: "image/png", Size: int64(len(pngBytes)),
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	for i, p := range got {
		assert.Equal(t, i, p.Index)
	}
	assert.Equal(t, "first ![img-0.jpeg](img-0.jpeg)", got[0].Markdown)

	require.Len(t, got[0].Images, 1)
	assert.Equal(t, "image/jpeg", got[0].Images[0].MIMEType)
	assert.Equal(t, pngBytes, got[0].Images[0].Data)

	require.Len(t, got[1].Images, 1)
	assert.Equal(t, "image/png", got[1].Images[0].MIMEType)

	assert.Equal(t, []string{"POST /v1/ocr"}, f.recorded())
	assert.Equal(t, "image_url", f.ocrBody.Document.Type)
	assert.True(t, strings.HasPrefix(f.ocrBody.Document.ImageURL, "data:image/png;base64,"))
	assert.True(t, f.ocrBody.IncludeImageBase64)
	assert.Equal(t, types.DefaultModel, f.ocrBody.Model)
}

func TestSubmit_PDFUploadFlow(t *testing.T) {
	f, ts := newFakeMistral(t, []ocrPage{{Index: 0, Markdown: "# Title"}})
	c := testClient(ts.URL)

	got, err := c.Submit(context.Background(), pdfInput())
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, []string{
		"POST /v1/files",
		"GET /v1/files/file-123/url",
		"POST /v1/ocr",
		"DELETE /v1/files/file-123",
	}, f.recorded())
	assert.Equal(t, "document_url", f.ocrBody.Document.Type)
	assert.Equal(t, "https://signed.example/file-123", f.ocrBody.Document.DocumentURL)
}

func TestSubmit_InlinePDF(t *testing.T) {
	f, ts := newFakeMistral(t, []ocrPage{{Index: 0, Markdown: "body"}})
	c := testClient(ts.URL)
	c.InlinePDF = true

	_, err := c.Submit(context.Background(), pdfInput())
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /v1/ocr"}, f.recorded())
	assert.True(t, strings.HasPrefix(f.ocrBody.Document.DocumentURL, "data:application/pdf;base64,"))
}

func TestSubmit_RetriesTransientFailures(t *testing.T) {
	f, ts := newFakeMistral(t, []ocrPage{{Index: 0, Markdown: "ok"}})
	f.ocrFails = []int{http.StatusServiceUnavailable, http.StatusTooManyRequests}
	c := testClient(ts.URL)
	c.InlinePDF = true

	var retries []httputil.State
	c.Retry.OnRetry = func(st httputil.State) { retries = append(retries, st) }

	got, err := c.Submit(context.Background(), pdfInput())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, f.recorded(), 3)
	require.Len(t, retries, 2)
	assert.Equal(t, http.StatusTooManyRequests, retries[1].StatusCode)
}

func TestSubmit_ExhaustedRetries(t *testing.T) {
	f, ts := newFakeMistral(t, nil)
	f.ocrFails = []int{500, 500, 500, 500, 500}
	c := testClient(ts.URL)
	c.InlinePDF = true

	_, err := c.Submit(context.Background(), pdfInput())
	require.Error(t, err)
	assert.Equal(t, types.KindTransient, types.KindOf(err))
	assert.Len(t, f.recorded(), 4)
}

func TestSubmit_AuthenticationShortCircuits(t *testing.T) {
	f, ts := newFakeMistral(t, nil)
	c := testClient(ts.URL)
	c.APIKey = "wrong"

	_, err := c.Submit(context.Background(), pdfInput())
	require.Error(t, err)
	assert.True(t, types.IsAuthentication(err))
	assert.Contains(t, err.Error(), "Unauthorized")
	assert.Equal(t, []string{"POST /v1/files"}, f.recorded())
}

func TestSubmit_EmptyPayload(t *testing.T) {
	f, ts := newFakeMistral(t, nil)
	c := testClient(ts.URL)

	_, err := c.Submit(context.Background(), types.InputDescriptor{Name: "empty.pdf", Kind: types.InputPDF})
	require.Error(t, err)
	assert.Equal(t, types.KindValidation, types.KindOf(err))
	assert.Empty(t, f.recorded())
}

func TestSubmit_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"pages": "not a list"`))
	}))
	defer ts.Close()
	c := testClient(ts.URL)
	c.InlinePDF = true

	_, err := c.Submit(context.Background(), pdfInput())
	require.Error(t, err)
	assert.Equal(t, types.KindPermanent, types.KindOf(err))
}

func TestSubmit_DuplicatePageIndex(t *testing.T) {
	_, ts := newFakeMistral(t, []ocrPage{{Index: 0}, {Index: 0}})
	c := testClient(ts.URL)
	c.InlinePDF = true

	_, err := c.Submit(context.Background(), pdfInput())
	require.Error(t, err)
	assert.Equal(t, types.KindPermanent, types.KindOf(err))
	assert.Contains(t, err.Error(), "duplicate page index")
}

func TestSubmitURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantType string
	}{
		{"pdf", "https://example.com/paper.pdf", "document_url"},
		{"image", "https://example.com/figure.PNG", "image_url"},
		{"no extension", "https://example.com/download?id=4", "document_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ts := newFakeMistral(t, []ocrPage{{Index: 0, Markdown: "x"}})
			c := testClient(ts.URL)

			_, err := c.SubmitURL(context.Background(), tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, f.ocrBody.Document.Type)
		})
	}
}

func TestSubmitURL_Invalid(t *testing.T) {
	c := testClient("http://unused.invalid")
	for _, u := range []string{"", "ftp://example.com/a.pdf", "not a url", "https://"} {
		_, err := c.SubmitURL(context.Background(), u)
		require.Error(t, err, u)
		assert.Equal(t, types.KindValidation, types.KindOf(err), u)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(types.OCRConfig{APIKey: "k", BaseURL: "https://api.example.com/"}, false, nil)
	assert.Equal(t, types.DefaultModel, c.Model)
	assert.Equal(t, "https://api.example.com", c.BaseURL)
	assert.False(t, c.IncludeImages)
	assert.NotNil(t, c.Logger)
	assert.Zero(t, c.Retry.MaxRetries)

	c = New(types.DefaultConfig().OCR, true, nil)
	assert.Equal(t, types.DefaultMaxRetries, c.Retry.MaxRetries)
}
