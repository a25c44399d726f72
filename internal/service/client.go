package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
)

const (
	uploadPath  = "api/v1/result"
	contentType = "application/json"
)

// ResultUploader POSTs encoded task results to a collector API.
type ResultUploader struct {
	requestURL *url.URL
	client     *http.Client
}

func NewResultUploader(serverURL string) (*ResultUploader, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the server url with a scheme and without path, e.g. `http://some-url.com`")
	}

	parsedURL.Path = uploadPath

	return &ResultUploader{
		requestURL: parsedURL,
		client:     &http.Client{},
	}, nil
}

type resultEnvelope struct {
	Result string `json:"result"` // base64 encoded TaskResult
}

func (c *ResultUploader) Upload(ctx context.Context, raw []byte) error {
	body, err := json.Marshal(resultEnvelope{Result: string(raw)})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.requestURL.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	created, err := c.decodeUploadResponse(resp)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "result uploaded successfully.",
		slog.String("id", created.ID))

	return nil
}

type resultCreateResponse struct {
	ID string `json:"id"`
}

func (c *ResultUploader) decodeUploadResponse(resp *http.Response) (resultCreateResponse, error) {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return resultCreateResponse{}, fmt.Errorf("failed to parse response content type header: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		if mediaType != "application/json" {
			return resultCreateResponse{}, fmt.Errorf("expected `application/json` content type, got: %s", mediaType)
		}
		var rc resultCreateResponse
		if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
			return resultCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		if rc.ID == "" {
			return resultCreateResponse{}, errors.New("received unexpected body")
		}
		return rc, nil

	case http.StatusBadRequest, http.StatusConflict, http.StatusUnsupportedMediaType:
		if mediaType != "application/problem+json" {
			return resultCreateResponse{}, fmt.Errorf("expected `application/problem+json` content type, got: %s", mediaType)
		}
		var problemDetail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return resultCreateResponse{}, fmt.Errorf("decoding json response failed: %w", err)
		}
		return resultCreateResponse{}, fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resultCreateResponse{}, err
	}
	return resultCreateResponse{}, fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}
