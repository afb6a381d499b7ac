// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ocr submits documents to the Mistral OCR API and returns the
// per-page results in page order. Every outbound call goes through the
// retry engine in internal/httputil.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/markit-mistral/internal/httputil"
	"github.com/pdiddy/markit-mistral/internal/input"
	"github.com/pdiddy/markit-mistral/pkg/types"
)

const (
	ocrPath   = "/v1/ocr"
	filesPath = "/v1/files"

	// filePurpose marks uploads as OCR inputs.
	filePurpose = "ocr"
)

// Client calls the Mistral OCR API.
type Client struct {
	APIKey    string
	Model     string
	BaseURL   string
	UserAgent string
	HTTP      *http.Client
	Retry     httputil.Policy

	// InlinePDF sends PDFs as a base64 data URI instead of uploading them.
	InlinePDF bool

	// IncludeImages requests the base64 payload of extracted images.
	IncludeImages bool

	Logger *logrus.Logger
}

// New builds a Client from configuration. A nil logger discards output.
// MaxRetries is used as given, so zero means one attempt per call; start
// from types.DefaultConfig for the default retry budget.
func New(cfg types.OCRConfig, includeImages bool, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = discardLogger
	}
	model := cfg.Model
	if model == "" {
		model = types.DefaultModel
	}
	base := cfg.BaseURL
	if base == "" {
		base = types.DefaultBaseURL
	}
	return &Client{
		APIKey:        cfg.APIKey,
		Model:         model,
		BaseURL:       strings.TrimRight(base, "/"),
		UserAgent:     cfg.UserAgent,
		HTTP:          &http.Client{Timeout: cfg.Timeout},
		Retry:         httputil.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryDelay},
		InlinePDF:     cfg.InlinePDF,
		IncludeImages: includeImages,
		Logger:        logger,
	}
}

// Submit OCRs one validated input and returns its pages sorted by index.
// PDFs are uploaded and referenced by a signed URL unless InlinePDF is set;
// images are always inlined.
func (c *Client) Submit(ctx context.Context, d types.InputDescriptor) ([]types.PageResult, error) {
	if len(d.Data) == 0 {
		return nil, types.NewValidationError("ocr", fmt.Sprintf("%s has an empty payload", d.Name))
	}

	log := c.logger().WithFields(logrus.Fields{"file": d.Name, "kind": d.Kind, "size_mb": d.SizeMB()})

	if d.Kind == types.InputImage {
		log.Debug("submitting inline image")
		return c.process(ctx, imageURL(dataURI(d.MIMEType, d.Data)))
	}

	if c.InlinePDF {
		log.Debug("submitting inline PDF")
		return c.process(ctx, documentURL(dataURI("application/pdf", d.Data)))
	}

	log.Debug("uploading PDF")
	fileID, err := c.upload(ctx, d)
	if err != nil {
		return nil, err
	}
	defer c.deleteFile(context.WithoutCancel(ctx), fileID)

	signed, err := c.signedURL(ctx, fileID)
	if err != nil {
		return nil, err
	}
	log.WithField("file_id", fileID).Debug("submitting uploaded PDF")
	return c.process(ctx, documentURL(signed))
}

// SubmitURL OCRs a remote document. URLs ending in a supported image
// extension are sent as image_url, everything else as document_url.
func (c *Client) SubmitURL(ctx context.Context, rawURL string) ([]types.PageResult, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, types.NewValidationError("ocr", fmt.Sprintf("invalid document URL %q: must be http or https", rawURL))
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if ext != ".pdf" && input.IsSupported(u.Path) {
		return c.process(ctx, imageURL(u.String()))
	}
	return c.process(ctx, documentURL(u.String()))
}

func (c *Client) process(ctx context.Context, doc ocrDocument) ([]types.PageResult, error) {
	body, err := json.Marshal(ocrRequest{
		Model:              c.Model,
		Document:           doc,
		IncludeImageBase64: c.IncludeImages,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling OCR request: %w", err)
	}

	resp, err := httputil.Do(ctx, c.HTTP, "ocr", func(ctx context.Context) (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodPost, ocrPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, c.policy("ocr"))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &types.Error{Kind: types.KindPermanent, Op: "ocr", Detail: "decoding OCR response", Err: err}
	}

	pages, err := toPageResults(out)
	if err != nil {
		return nil, &types.Error{Kind: types.KindPermanent, Op: "ocr", Detail: "invalid OCR response", Err: err}
	}
	c.logger().WithField("pages", len(pages)).Debug("OCR response received")
	return pages, nil
}

// upload sends the PDF to the files endpoint and returns the file id.
func (c *Client) upload(ctx context.Context, d types.InputDescriptor) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", filePurpose); err != nil {
		return "", fmt.Errorf("writing multipart field: %w", err)
	}
	part, err := mw.CreateFormFile("file", d.Name)
	if err != nil {
		return "", fmt.Errorf("creating multipart file: %w", err)
	}
	if _, err := part.Write(d.Data); err != nil {
		return "", fmt.Errorf("writing multipart file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart writer: %w", err)
	}
	payload := buf.Bytes()
	contentType := mw.FormDataContentType()

	resp, err := httputil.Do(ctx, c.HTTP, "upload", func(ctx context.Context) (*http.Request, error) {
		req, err := c.newRequest(ctx, http.MethodPost, filesPath, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, c.policy("upload"))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &types.Error{Kind: types.KindPermanent, Op: "upload", Detail: "decoding upload response", Err: err}
	}
	if out.ID == "" {
		return "", &types.Error{Kind: types.KindPermanent, Op: "upload", Detail: "upload response has no file id"}
	}
	return out.ID, nil
}

// signedURL fetches a temporary URL the OCR endpoint can read the upload from.
func (c *Client) signedURL(ctx context.Context, fileID string) (string, error) {
	p := filesPath + "/" + url.PathEscape(fileID) + "/url"
	resp, err := httputil.Do(ctx, c.HTTP, "signed_url", func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, p, nil)
	}, c.policy("signed_url"))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out signedURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &types.Error{Kind: types.KindPermanent, Op: "signed_url", Detail: "decoding signed URL response", Err: err}
	}
	if out.URL == "" {
		return "", &types.Error{Kind: types.KindPermanent, Op: "signed_url", Detail: "signed URL response is empty"}
	}
	return out.URL, nil
}

// deleteFile removes an upload. Failures are logged, not returned.
func (c *Client) deleteFile(ctx context.Context, fileID string) {
	req, err := c.newRequest(ctx, http.MethodDelete, filesPath+"/"+url.PathEscape(fileID), nil)
	if err != nil {
		return
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.logger().WithError(err).WithField("file_id", fileID).Warn("could not delete uploaded file")
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		c.logger().WithFields(logrus.Fields{"file_id": fileID, "status": resp.StatusCode}).Warn("could not delete uploaded file")
	}
}

func (c *Client) newRequest(ctx context.Context, method, p string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+p, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// policy returns the retry policy for op with attempt logging attached.
func (c *Client) policy(op string) httputil.Policy {
	p := c.Retry
	hook := p.OnRetry
	p.OnRetry = func(st httputil.State) {
		c.logger().WithFields(logrus.Fields{
			"op":      op,
			"attempt": st.Attempt,
			"status":  st.StatusCode,
			"kind":    st.LastKind,
			"delay":   st.Delay,
		}).Warn(httputil.Describe(st))
		if hook != nil {
			hook(st)
		}
	}
	return p
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) logger() *logrus.Logger {
	if c.Logger == nil {
		return discardLogger
	}
	return c.Logger
}

var discardLogger = newDiscardLogger()

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
