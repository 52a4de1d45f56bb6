// Package api is the typed HTTP client of the sync server.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"groupsync/internal/gs"
)

// ErrTooLarge means the server refused an upload over its size limit.
var ErrTooLarge = errors.New("upload too large for server")

// Client talks to one server on behalf of one client identity.
type Client struct {
	baseURL  string
	hostName string
	http     *http.Client

	mu       sync.RWMutex
	clientID string
}

// New creates a Client. Requests are bounded by the contexts passed to each
// call, so hc normally has no timeout of its own. A nil hc uses a default
// client.
func New(baseURL, clientID, hostName string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		hostName: hostName,
		http:     hc,
		clientID: clientID,
	}
}

func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// SetClientID changes the identity sent with every request.
func (c *Client) SetClientID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = id
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodGet, "/ping", nil, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return fmt.Errorf("%w: reading ping response: %w", gs.ErrNetwork, err)
	}
	if strings.TrimSpace(string(body)) != "pong" {
		return fmt.Errorf("%w: unexpected ping response %q", gs.ErrNetwork, body)
	}
	return nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	var v gs.VersionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/version", nil, nil, &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// RegisterClient registers this client, or refreshes it when it already has
// an id. The id the server returns is adopted for later calls.
func (c *Client) RegisterClient(ctx context.Context, minPollMs int64) (*gs.Client, error) {
	req := gs.RegisterClientRequest{
		ClientID:          c.ClientID(),
		HostName:          c.hostName,
		MinPollIntervalMs: minPollMs,
	}
	var out gs.Client
	if err := c.doJSON(ctx, http.MethodPost, "/api/clients", nil, req, &out); err != nil {
		return nil, err
	}
	c.SetClientID(out.ID)
	return &out, nil
}

func (c *Client) CreateGroup(ctx context.Context, name string) (*gs.ServerWatchGroup, error) {
	var out gs.ServerWatchGroup
	if err := c.doJSON(ctx, http.MethodPost, "/api/watch-groups", nil, gs.GroupRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]gs.ServerWatchGroup, error) {
	var out []gs.ServerWatchGroup
	if err := c.doJSON(ctx, http.MethodGet, "/api/watch-groups", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RenameGroup(ctx context.Context, id int64, name string) (*gs.ServerWatchGroup, error) {
	var out gs.ServerWatchGroup
	p := "/api/watch-groups/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, http.MethodPut, p, nil, gs.GroupRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterMapping maps a local directory of this client to a group.
func (c *Client) RegisterMapping(ctx context.Context, req gs.MappingRequest) (*gs.ClientWatchGroup, error) {
	req.ClientID = c.ClientID()
	var out gs.ClientWatchGroup
	if err := c.doJSON(ctx, http.MethodPost, "/api/client-watch-groups", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Mappings(ctx context.Context) ([]gs.ClientWatchGroup, error) {
	var out []gs.ClientWatchGroup
	if err := c.doJSON(ctx, http.MethodGet, "/api/client-watch-groups", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Resolve returns the group a local directory is mapped to.
func (c *Client) Resolve(ctx context.Context, localPath string) (*gs.ServerWatchGroup, error) {
	var out gs.ServerWatchGroup
	q := url.Values{"local_path": {localPath}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/client-watch-groups/resolve", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteMapping(ctx context.Context, id int64) error {
	p := "/api/client-watch-groups/" + strconv.FormatInt(id, 10)
	return c.doJSON(ctx, http.MethodDelete, p, nil, nil, nil)
}

// SubmitEvent records an event that carries no new content, such as a delete.
func (c *Client) SubmitEvent(ctx context.Context, ev gs.CandidateEvent) (*gs.FileEvent, error) {
	var out gs.FileEvent
	if err := c.doJSON(ctx, http.MethodPost, "/api/events", nil, ev, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the group's events after cursor.
func (c *Client) History(ctx context.Context, groupID, since int64) ([]gs.FileEvent, error) {
	q := url.Values{
		"group_id": {strconv.FormatInt(groupID, 10)},
		"since":    {strconv.FormatInt(since, 10)},
	}
	var out []gs.FileEvent
	if err := c.doJSON(ctx, http.MethodGet, "/api/events", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PathHistory returns every event of one path.
func (c *Client) PathHistory(ctx context.Context, groupID int64, path string) ([]gs.FileEvent, error) {
	q := url.Values{
		"group_id": {strconv.FormatInt(groupID, 10)},
		"path":     {path},
	}
	var out []gs.FileEvent
	if err := c.doJSON(ctx, http.MethodGet, "/api/events/history", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload streams r to the server as a multipart body. The body is produced
// while it is sent, so the content is never buffered in memory.
func (c *Client) Upload(ctx context.Context, req gs.UploadRequest, r io.Reader) (*gs.FileEvent, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUpload(mw, req, r))
	}()

	resp, err := c.send(ctx, http.MethodPost, "/api/events/upload", nil, pr, mw.FormDataContentType())
	// Unblock the writer if the request ended before the body was consumed.
	pr.Close()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out gs.FileEvent
	if err := decodeBody(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func writeUpload(mw *multipart.Writer, req gs.UploadRequest, r io.Reader) error {
	fields := [][2]string{
		{gs.UploadFieldGroupID, strconv.FormatInt(req.GroupID, 10)},
		{gs.UploadFieldPath, req.Path},
		{gs.UploadFieldUTCMillis, strconv.FormatInt(req.UTCMillis, 10)},
		{gs.UploadFieldSize, strconv.FormatInt(req.Size, 10)},
	}
	if req.Checksum != "" {
		fields = append(fields, [2]string{gs.UploadFieldChecksum, req.Checksum})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}

	fw, err := mw.CreateFormFile(gs.UploadFieldFile, "content")
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return err
	}
	return mw.Close()
}

// Plan asks the server what this client must pull and delete.
func (c *Client) Plan(ctx context.Context, groupID int64, manifest []gs.ManifestEntry) (*gs.Plan, error) {
	if manifest == nil {
		manifest = []gs.ManifestEntry{}
	}
	var out gs.Plan
	if err := c.doJSON(ctx, http.MethodPost, "/api/plan", nil, gs.PlanRequest{GroupID: groupID, Manifest: manifest}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download writes the current content of path to w and returns the number
// of bytes written. A body shorter than the announced length fails with
// ErrNetwork.
func (c *Client) Download(ctx context.Context, groupID int64, path string, w io.Writer) (int64, error) {
	q := url.Values{
		"group_id": {strconv.FormatInt(groupID, 10)},
		"path":     {path},
	}
	resp, err := c.send(ctx, http.MethodGet, "/api/download", q, nil, "")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: downloading %s: %w", gs.ErrNetwork, path, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: downloading %s: got %d of %d bytes", gs.ErrNetwork, path, n, resp.ContentLength)
	}
	return n, nil
}

func (c *Client) doJSON(ctx context.Context, method, p string, q url.Values, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, err := c.send(ctx, method, p, q, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decodeBody(resp, out)
}

// send performs a request and converts transport failures and error
// responses into the error taxonomy. On success the caller owns resp.Body.
func (c *Client) send(ctx context.Context, method, p string, q url.Values, body io.Reader, contentType string) (*http.Response, error) {
	u := c.baseURL + p
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if id := c.ClientID(); id != "" {
		req.Header.Set(gs.HeaderClientID, id)
	}
	if c.hostName != "" {
		req.Header.Set(gs.HeaderClientHostname, c.hostName)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", gs.ErrNetwork, method, p, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, responseError(resp)
}

func decodeBody(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", gs.ErrNetwork, err)
	}
	return nil
}
