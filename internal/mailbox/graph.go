package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tripshield/inquiry-desk/internal/domain"
)

const maxMessagePages = 100

type GraphClientConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Mailbox      string
	BaseURL      string
	TokenURL     string
	PageSize     int
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// GraphClient reads the agency inbox through the Microsoft Graph API
// using an application (client credentials) grant.
type GraphClient struct {
	clientID     string
	clientSecret string
	mailbox      string
	baseURL      string
	tokenURL     string
	pageSize     int
	timeout      time.Duration
	httpClient   *http.Client

	tokenMu      sync.Mutex
	token        string
	tokenExpires time.Time
}

func NewGraphClient(config GraphClientConfig) *GraphClient {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://graph.microsoft.com/v1.0"
	}
	if strings.TrimSpace(config.TokenURL) == "" && strings.TrimSpace(config.TenantID) != "" {
		config.TokenURL = "https://login.microsoftonline.com/" +
			url.PathEscape(strings.TrimSpace(config.TenantID)) + "/oauth2/v2.0/token"
	}
	if config.PageSize <= 0 || config.PageSize > 100 {
		config.PageSize = 50
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}

	return &GraphClient{
		clientID:     strings.TrimSpace(config.ClientID),
		clientSecret: strings.TrimSpace(config.ClientSecret),
		mailbox:      strings.TrimSpace(config.Mailbox),
		baseURL:      strings.TrimSuffix(config.BaseURL, "/"),
		tokenURL:     config.TokenURL,
		pageSize:     config.PageSize,
		timeout:      config.Timeout,
		httpClient:   config.HTTPClient,
	}
}

func (c *GraphClient) Available() bool {
	return c.clientID != "" && c.clientSecret != "" && c.mailbox != "" && c.tokenURL != ""
}

func (c *GraphClient) ListMessagesSince(ctx context.Context, since time.Time) ([]MessageSummary, error) {
	if !c.Available() {
		return nil, ErrMailboxUnavailable
	}

	query := url.Values{}
	query.Set("$filter", "receivedDateTime ge "+since.UTC().Format("2006-01-02T15:04:05Z"))
	query.Set("$orderby", "receivedDateTime asc")
	query.Set("$top", strconv.Itoa(c.pageSize))
	query.Set("$select", "id,subject,bodyPreview,from,receivedDateTime")

	next := c.mailboxURL("/messages") + "?" + query.Encode()
	summaries := make([]MessageSummary, 0, c.pageSize)

	for page := 0; next != ""; page++ {
		if page >= maxMessagePages {
			return nil, fmt.Errorf("mailbox listing exceeded %d pages", maxMessagePages)
		}

		var response listMessagesResponse
		if err := c.getJSON(ctx, next, &response); err != nil {
			return nil, err
		}
		for _, item := range response.Value {
			summaries = append(summaries, MessageSummary{
				ID:         item.ID,
				Sender:     strings.TrimSpace(item.From.EmailAddress.Address),
				SenderName: strings.TrimSpace(item.From.EmailAddress.Name),
				Subject:    item.Subject,
				Preview:    item.BodyPreview,
				ReceivedAt: item.ReceivedDateTime,
			})
		}
		next = response.NextLink
	}
	return summaries, nil
}

func (c *GraphClient) GetMessage(ctx context.Context, id string) (*MessageDetail, error) {
	if !c.Available() {
		return nil, ErrMailboxUnavailable
	}

	query := url.Values{}
	query.Set("$select", "id,subject,from,receivedDateTime,body,hasAttachments")
	endpoint := c.mailboxURL("/messages/"+url.PathEscape(id)) + "?" + query.Encode()

	var response messageDetailResponse
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	detail := &MessageDetail{
		ID:          response.ID,
		Sender:      strings.TrimSpace(response.From.EmailAddress.Address),
		SenderName:  strings.TrimSpace(response.From.EmailAddress.Name),
		Subject:     response.Subject,
		Body:        response.Body.Content,
		ContentType: strings.ToLower(response.Body.ContentType),
		ReceivedAt:  response.ReceivedDateTime,
	}

	if response.HasAttachments {
		attachments, err := c.listAttachments(ctx, id)
		if err != nil {
			return nil, err
		}
		detail.Attachments = attachments
	}
	return detail, nil
}

func (c *GraphClient) listAttachments(ctx context.Context, id string) ([]domain.EmailAttachment, error) {
	query := url.Values{}
	query.Set("$select", "name,contentType,size")
	endpoint := c.mailboxURL("/messages/"+url.PathEscape(id)+"/attachments") + "?" + query.Encode()

	var response struct {
		Value []struct {
			Name        string `json:"name"`
			ContentType string `json:"contentType"`
			Size        int64  `json:"size"`
		} `json:"value"`
	}
	if err := c.getJSON(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	attachments := make([]domain.EmailAttachment, 0, len(response.Value))
	for _, item := range response.Value {
		attachments = append(attachments, domain.EmailAttachment{
			Name:        item.Name,
			ContentType: item.ContentType,
			Size:        item.Size,
		})
	}
	return attachments, nil
}

func (c *GraphClient) mailboxURL(suffix string) string {
	return c.baseURL + "/users/" + url.PathEscape(c.mailbox) + suffix
}

func (c *GraphClient) getJSON(ctx context.Context, endpoint string, target any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create mailbox request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("mailbox transport error: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("read mailbox response: %w", err)
	}

	if response.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newAPIError(response.StatusCode, body)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("decode mailbox response: %w", err)
	}
	return nil
}

func (c *GraphClient) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	// Refresh a minute early so an in-flight page never carries an
	// expired token.
	if c.token != "" && time.Now().Before(c.tokenExpires.Add(-60*time.Second)) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("scope", "https://graph.microsoft.com/.default")
	form.Set("grant_type", "client_credentials")

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("token transport error: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", newAPIError(response.StatusCode, body)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", errors.New("token response without access_token")
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	c.token = payload.AccessToken
	c.tokenExpires = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return c.token, nil
}

func (c *GraphClient) invalidateToken() {
	c.tokenMu.Lock()
	c.token = ""
	c.tokenExpires = time.Time{}
	c.tokenMu.Unlock()
}

type listMessagesResponse struct {
	Value    []graphMessageSummary `json:"value"`
	NextLink string                `json:"@odata.nextLink"`
}

type graphMessageSummary struct {
	ID               string       `json:"id"`
	Subject          string       `json:"subject"`
	BodyPreview      string       `json:"bodyPreview"`
	ReceivedDateTime time.Time    `json:"receivedDateTime"`
	From             graphAddress `json:"from"`
}

type messageDetailResponse struct {
	ID               string       `json:"id"`
	Subject          string       `json:"subject"`
	ReceivedDateTime time.Time    `json:"receivedDateTime"`
	From             graphAddress `json:"from"`
	HasAttachments   bool         `json:"hasAttachments"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("graph status %d: %s", e.StatusCode, e.Message)
}

func newAPIError(statusCode int, body []byte) *apiError {
	message := strings.TrimSpace(string(body))
	if len(message) > 700 {
		message = message[:700]
	}
	return &apiError{StatusCode: statusCode, Message: message}
}
