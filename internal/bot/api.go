package bot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

type apiClient struct {
	baseURL   string
	publicURL string
	client    *http.Client
	transfer  *http.Client
}

type jobStatusResponse struct {
	JobID          string `json:"jobId"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	OriginalName   string `json:"originalName"`
	OriginalSize   int64  `json:"originalSize"`
	CompressedSize int64  `json:"compressedSize"`
	Codec          string `json:"codec"`
	Mode           string `json:"mode"`
	Error          string `json:"error"`
}

type uploadResponse struct {
	JobID    string `json:"jobId"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Error    string `json:"error"`
}

type compressRequest struct {
	Codec      string `json:"codec,omitempty"`
	Mode       string `json:"mode"`
	Preset     string `json:"preset,omitempty"`
	TargetSize int    `json:"targetSize,omitempty"`
}

func newAPIClient(baseURL, publicURL string) *apiClient {
	baseURL = strings.TrimRight(baseURL, "/")
	publicURL = strings.TrimRight(publicURL, "/")
	if publicURL == "" {
		publicURL = baseURL
	}
	return &apiClient{
		baseURL:   baseURL,
		publicURL: publicURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		transfer: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

func (a *apiClient) doJSON(method, path string, body interface{}) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, a.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return data, resp.StatusCode, err
}

func apiError(data []byte, httpStatus int) error {
	var resp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &resp) == nil && resp.Error != "" {
		return errors.New(resp.Error)
	}
	return fmt.Errorf("HTTP %d", httpStatus)
}

// uploadFromURL streams the file at fileURL into a multipart upload without
// buffering it in memory.
func (a *apiClient) uploadFromURL(fileURL, filename string) (*uploadResponse, error) {
	src, err := a.transfer.Get(fileURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attachment: %w", err)
	}
	if src.StatusCode != http.StatusOK {
		src.Body.Close()
		return nil, fmt.Errorf("failed to fetch attachment: HTTP %d", src.StatusCode)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer src.Body.Close()
		part, err := mw.CreateFormFile("video", filename)
		if err == nil {
			_, err = io.Copy(part, src.Body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequest("POST", a.baseURL+"/upload", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.transfer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(data, resp.StatusCode)
	}

	var out uploadResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

func (a *apiClient) startCompress(jobID string, req compressRequest) error {
	data, status, err := a.doJSON("POST", "/compress/"+jobID, req)
	if err != nil {
		return err
	}
	if status != http.StatusAccepted {
		return apiError(data, status)
	}
	return nil
}

func (a *apiClient) checkStatus(jobID string) (*jobStatusResponse, error) {
	data, status, err := a.doJSON("GET", "/status/"+jobID, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("status check failed: %w", apiError(data, status))
	}
	var resp jobStatusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &resp, nil
}

func (a *apiClient) downloadFile(jobID string) ([]byte, string, error) {
	resp, err := a.transfer.Get(a.baseURL + "/download/" + jobID)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	filename := ""
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		_, params, parseErr := mime.ParseMediaType(cd)
		if parseErr == nil {
			if name, ok := params["filename"]; ok {
				filename = name
			}
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscordFileSize+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxDiscordFileSize {
		return nil, "", fmt.Errorf("file exceeds Discord upload limit")
	}
	return data, filename, nil
}

func (a *apiClient) getDownloadURL(jobID string) string {
	return a.publicURL + "/download/" + jobID
}
