package instagram

import (
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"igdownloader/pkg/config"
	"igdownloader/pkg/errors"
	"igdownloader/pkg/logger"
)

// Client wraps outbound HTTP with the platform's required headers and the
// configured cookie set. It is the single translation boundary between the
// pipeline and Instagram's wire contract.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	csrfToken  string
	logger     logger.Logger

	// fbDTSG is scraped lazily from the profile page and cached per client.
	fbDTSG string
}

// NewClient creates a session client for the given credentials.
func NewClient(creds config.InstagramConfig, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	userAgent := creds.UserAgent
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}

	var cookies []string
	if creds.SessionID != "" {
		cookies = append(cookies, "sessionid="+creds.SessionID)
	}
	if creds.CSRFToken != "" {
		cookies = append(cookies, "csrftoken="+creds.CSRFToken)
	}
	if creds.DSUserID != "" {
		cookies = append(cookies, "ds_user_id="+creds.DSUserID)
	}

	headers := map[string]string{
		"User-Agent":       userAgent,
		"Accept":           "*/*",
		"Accept-Language":  "en-US,en;q=0.9",
		"X-Requested-With": "XMLHttpRequest",
		"X-IG-App-ID":      AppID,
		"X-Instagram-AJAX": "1",
		"Sec-Fetch-Dest":   "empty",
		"Sec-Fetch-Mode":   "cors",
		"Sec-Fetch-Site":   "same-origin",
		"Origin":           BaseURL,
		"Referer":          BaseURL + "/",
	}
	if len(cookies) > 0 {
		headers["Cookie"] = strings.Join(cookies, "; ")
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    headers,
		baseURL:    BaseURL,
		csrfToken:  creds.CSRFToken,
		logger:     log,
	}
}

// SetBaseURL overrides the platform base URL. Used by tests.
func (c *Client) SetBaseURL(base string) {
	c.baseURL = strings.TrimRight(base, "/")
}

// doRequest performs an HTTP request with the configured headers.
func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errors.New(errors.ErrorTypeNetwork, 0, "network error: %v", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	return resp, nil
}

// checkResponseStatus maps the HTTP status onto the error taxonomy.
func (c *Client) checkResponseStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	err := errors.FromStatusCode(resp.StatusCode, resp.Request.URL.String())
	switch err.Type {
	case errors.ErrorTypeAuth:
		c.logger.WarnWithFields("authentication rejected", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
	case errors.ErrorTypeRateLimit:
		c.logger.WarnWithFields("rate limit exceeded", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
	default:
		c.logger.ErrorWithFields("unexpected API status", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
	}
	return err
}

// FetchTimelinePage fetches one page of a user's feed. after is the opaque
// cursor from the previous page, empty for the first page.
func (c *Client) FetchTimelinePage(username, after string, count int) (*TimelineResponse, error) {
	form := TimelineForm(username, after, c.dtsg(username), count)

	req, err := http.NewRequest(http.MethodPost, GraphQLURL(c.baseURL), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.New(errors.ErrorTypePermanent, 0, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(errors.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}

	var page TimelineResponse
	if err := json.Unmarshal(body, &page); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse timeline page", map[string]interface{}{
			"username":     username,
			"after":        after,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, errors.New(errors.ErrorTypeParsing, resp.StatusCode, "failed to parse timeline page: %v", err)
	}

	if page.LoginRequired() {
		c.logger.WarnWithFields("session rejected by platform", map[string]interface{}{
			"username": username,
		})
		return nil, errors.New(errors.ErrorTypeAuth, resp.StatusCode, "Instagram rejected the session: login required")
	}

	return &page, nil
}

// dtsg returns the cached fb_dtsg token, scraping the profile page on
// first use. Falls back to a static token when scraping fails.
func (c *Client) dtsg(username string) string {
	if c.fbDTSG != "" {
		return c.fbDTSG
	}
	c.fbDTSG = c.fetchDTSG(username)
	return c.fbDTSG
}

// fetchDTSG extracts the fb_dtsg form token from the profile page.
func (c *Client) fetchDTSG(username string) string {
	req, err := http.NewRequest(http.MethodGet, ProfileURL(c.baseURL, username), nil)
	if err != nil {
		return fallbackDTSG
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return fallbackDTSG
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallbackDTSG
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fallbackDTSG
	}

	for _, pattern := range dtsgPatterns {
		if m := regexp.MustCompile(pattern).FindSubmatch(body); m != nil {
			c.logger.DebugWithFields("scraped fb_dtsg token", map[string]interface{}{
				"username": username,
			})
			return string(m[1])
		}
	}

	c.logger.Debug("fb_dtsg not found on profile page, using fallback token")
	return fallbackDTSG
}

// Download performs a streaming GET of a media URL. The caller owns the
// response body and must close it. Non-200 responses are mapped onto the
// taxonomy and the body is closed here.
func (c *Client) Download(mediaURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, errors.New(errors.ErrorTypePermanent, 0, "malformed media URL %q: %v", mediaURL, err)
	}

	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}

	if err := c.checkResponseStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp, nil
}

// ContentLength returns the advertised body size of resp, 0 if unknown.
func ContentLength(resp *http.Response) int64 {
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}
