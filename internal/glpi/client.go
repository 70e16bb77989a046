// Package glpi implements the remote submission and pull capabilities
// on top of the GLPI REST API. The sync engine only sees the
// capability interfaces; everything GLPI-specific stays here.
package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	neturl "net/url"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/jhamf/actasync/internal/errors"
	"github.com/jhamf/actasync/internal/logging"
	"github.com/jhamf/actasync/internal/models"
	syncpkg "github.com/jhamf/actasync/internal/sync"
)

// Config holds the GLPI connection settings.
type Config struct {
	// APIURL is the GLPI REST root (…/apirest.php).
	APIURL    string
	AppToken  string
	UserToken string

	// SyncURL is the remote record source endpoint used by
	// reconciliation pulls. Optional; Pull errors when unset.
	SyncURL string

	Timeout time.Duration
}

// DocumentRenderer turns a record into the document payload uploaded
// to the ticket. Report layout (the PDF) belongs to the reporting
// collaborator; the default renders the record as JSON.
type DocumentRenderer func(rec *models.MaintenanceRecord) (filename string, data []byte, err error)

// Client talks to GLPI. It implements sync.Submitter and sync.Puller.
type Client struct {
	config     *Config
	httpClient *http.Client
	renderer   DocumentRenderer

	mu           sync.Mutex
	sessionToken string
}

// NewClient creates a new GLPI client.
func NewClient(config *Config) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		renderer: jsonRenderer,
	}
}

// SetRenderer replaces the default document renderer.
func (c *Client) SetRenderer(r DocumentRenderer) {
	if r != nil {
		c.renderer = r
	}
}

// Submit uploads the record's document to GLPI, links it to the
// ticket and adds a followup comment. A followup failure is logged
// but does not fail the submission: the document is already attached.
func (c *Client) Submit(ctx context.Context, rec *models.MaintenanceRecord) (*syncpkg.SubmitResult, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	filename, data, err := c.renderer(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to render document: %w", err)
	}

	docID, err := c.uploadDocument(ctx, filename, data)
	if err != nil {
		return nil, err
	}

	if err := c.linkDocument(ctx, docID, rec.ExternalTicketID); err != nil {
		return nil, err
	}

	hostname := rec.EquipmentHostname
	if hostname == "" {
		hostname = "S-H"
	}
	followup := fmt.Sprintf(
		"Se ha registrado el Acta de Mantenimiento Digital (%s). nombre Equipo: %s Documento ID: %d",
		rec.Type, hostname, docID)
	if err := c.addFollowup(ctx, rec.ExternalTicketID, followup); err != nil {
		logging.Warn("GLPI followup failed", map[string]interface{}{
			"ticket_id": rec.ExternalTicketID,
			"error":     err.Error(),
		})
	}

	return &syncpkg.SubmitResult{ExternalDocID: strconv.FormatInt(docID, 10)}, nil
}

// Pull fetches remote records from the configured sync endpoint.
func (c *Client) Pull(ctx context.Context, limit int) ([]*syncpkg.RemoteRecord, error) {
	if c.config.SyncURL == "" {
		return nil, apperrors.New(apperrors.ErrConfig, "sync endpoint not configured")
	}

	url := fmt.Sprintf("%s?limit=%d", c.config.SyncURL, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(body))
	}

	var remote []*syncpkg.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		return nil, fmt.Errorf("failed to decode remote records: %w", err)
	}
	return remote, nil
}

// FindComputer searches the GLPI inventory by serial or inventory
// number and returns the first match, or nil when nothing matches.
// It implements the asset resolver's Fetcher.
func (c *Client) FindComputer(ctx context.Context, query string) (*models.AssetCacheEntry, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/Computer?searchText=%s&is_deleted=0", c.config.APIURL, neturl.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setSessionHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("computer search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.resetSession()
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("computer search failed with status %d: %s", resp.StatusCode, string(body))
	}

	var computers []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Serial      string `json:"serial"`
		OtherSerial string `json:"otherserial"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&computers); err != nil {
		return nil, fmt.Errorf("failed to decode computer search: %w", err)
	}
	if len(computers) == 0 {
		return nil, nil
	}

	first := computers[0]
	return &models.AssetCacheEntry{
		Serial:   first.Serial,
		Hostname: first.Name,
	}, nil
}

// ensureSession initializes the GLPI session lazily.
func (c *Client) ensureSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionToken != "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.APIURL+"/initSession", nil)
	if err != nil {
		return err
	}
	req.Header.Set("App-Token", c.config.AppToken)
	req.Header.Set("Authorization", "user_token "+c.config.UserToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteAuth, "initSession request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apperrors.New(apperrors.ErrRemoteAuth,
			fmt.Sprintf("initSession failed with status %d: %s", resp.StatusCode, string(body)))
	}

	var session struct {
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return apperrors.Wrap(apperrors.ErrRemoteAuth, "failed to decode session", err)
	}
	if session.SessionToken == "" {
		return apperrors.New(apperrors.ErrRemoteAuth, "initSession returned empty token")
	}

	c.sessionToken = session.SessionToken
	logging.Info("GLPI session established", nil)
	return nil
}

// uploadDocument creates a Document from the rendered payload.
func (c *Client) uploadDocument(ctx context.Context, filename string, data []byte) (int64, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	manifest := map[string]interface{}{
		"input": map[string]interface{}{
			"name":      "Consolidado - " + filename,
			"_filename": []string{filename},
		},
	}
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return 0, err
	}
	if err := writer.WriteField("uploadManifest", string(manifestJSON)); err != nil {
		return 0, err
	}

	part, err := writer.CreateFormFile("filename", filename)
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/Document", &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.setSessionHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("document upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.resetSession()
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("document upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	var doc struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to decode document response: %w", err)
	}
	return doc.ID, nil
}

// linkDocument associates an uploaded document with a ticket.
func (c *Client) linkDocument(ctx context.Context, docID int64, ticketID string) error {
	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"documents_id": docID,
			"items_id":     ticketID,
			"itemtype":     "Ticket",
		},
	}
	return c.postJSON(ctx, "/Document_Item", payload)
}

// addFollowup adds a followup comment to a ticket.
func (c *Client) addFollowup(ctx context.Context, ticketID, content string) error {
	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"items_id":   ticketID,
			"itemtype":   "Ticket",
			"content":    content,
			"is_private": 0,
		},
	}
	return c.postJSON(ctx, "/ITILFollowup", payload)
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.setSessionHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.resetSession()
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *Client) setSessionHeaders(req *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req.Header.Set("App-Token", c.config.AppToken)
	req.Header.Set("Session-Token", c.sessionToken)
}

// resetSession drops the cached token so the next call re-auths.
func (c *Client) resetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = ""
}

// jsonRenderer is the default document renderer.
func jsonRenderer(rec *models.MaintenanceRecord) (string, []byte, error) {
	hostname := rec.EquipmentHostname
	if hostname == "" {
		hostname = "S-H"
	}
	filename := fmt.Sprintf("Acta_%s_%d.json", hostname, time.Now().UnixMilli())

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", nil, err
	}
	return filename, data, nil
}
