// Package webhdfs implements core.Store against a Hadoop cluster through the
// WebHDFS REST API. Only whole-file operations are used: there is no append,
// and writes always go through CREATE with overwrite=true.
package webhdfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"chemledger/internal/blob/core"
)

const apiPrefix = "/webhdfs/v1"

// Config holds construction parameters for the WebHDFS store.
type Config struct {
	URL     string        // namenode base URL, e.g. http://namenode:9870
	User    string        // principal sent as user.name (pseudo authentication)
	Root    string        // directory keys are resolved under; defaults to "/"
	Timeout time.Duration // per request; zero leaves the http client default (none)
	Client  *http.Client  // optional; overrides Timeout
}

// Store implements core.Store using WebHDFS.
type Store struct {
	base   *url.URL
	user   string
	root   string
	client *http.Client
}

// New validates cfg and returns a WebHDFS store. No request is issued.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhdfs url required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse webhdfs url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("webhdfs url must be http or https, got %q", cfg.URL)
	}
	root := cfg.Root
	if root == "" {
		root = "/"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	// CREATE answers with a redirect to a datanode that must receive the body;
	// the second hop is issued explicitly.
	noFollow := *client
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &Store{base: base, user: cfg.User, root: path.Clean("/" + root), client: &noFollow}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverWebHDFS }

// fileStatus mirrors the WebHDFS FileStatus JSON object.
type fileStatus struct {
	PathSuffix       string `json:"pathSuffix"`
	Type             string `json:"type"`
	Length           int64  `json:"length"`
	ModificationTime int64  `json:"modificationTime"`
}

type remoteException struct {
	RemoteException struct {
		Exception string `json:"exception"`
		Message   string `json:"message"`
	} `json:"RemoteException"`
}

// Probe issues GETFILESTATUS on the filesystem root.
func (s *Store) Probe(ctx context.Context) error {
	_, err := s.status(ctx, "/")
	return err
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	resp, err := s.do(ctx, http.MethodPut, s.opURL(p, "CREATE", url.Values{"overwrite": {"true"}}), nil, "")
	if err != nil {
		return core.Info{}, err
	}
	if !isRedirect(resp.StatusCode) {
		err := s.errorFrom(resp, "create", key)
		drain(resp)
		return core.Info{}, err
	}
	drain(resp)
	location := resp.Header.Get("Location")
	if location == "" {
		return core.Info{}, fmt.Errorf("webhdfs create %s: redirect without location", key)
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	resp, err = s.do(ctx, http.MethodPut, location, bytes.NewReader(body), contentType)
	if err != nil {
		return core.Info{}, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return core.Info{}, s.errorFrom(resp, "write", key)
	}
	return core.Info{Key: key, Size: int64(len(body)), ContentType: opts.ContentType, LastModified: time.Now().UTC()}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	info, err := s.Head(ctx, key)
	if err != nil {
		return core.Info{}, nil, err
	}
	target := s.opURL(p, "OPEN", nil)
	// OPEN redirects to a datanode; follow a bounded number of hops by hand.
	for hop := 0; hop < 3; hop++ {
		resp, err := s.do(ctx, http.MethodGet, target, nil, "")
		if err != nil {
			return core.Info{}, nil, err
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return info, resp.Body, nil
		case isRedirect(resp.StatusCode) && resp.Header.Get("Location") != "":
			target = resp.Header.Get("Location")
			drain(resp)
		default:
			err := s.errorFrom(resp, "open", key)
			drain(resp)
			return core.Info{}, nil, err
		}
	}
	return core.Info{}, nil, fmt.Errorf("webhdfs open %s: too many redirects", key)
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return core.Info{}, err
	}
	st, err := s.status(ctx, p)
	if err != nil {
		return core.Info{}, err
	}
	if st.Type == "DIRECTORY" {
		return core.Info{}, fmt.Errorf("webhdfs %s is a directory", key)
	}
	return core.Info{Key: key, Size: st.Length, LastModified: time.UnixMilli(st.ModificationTime).UTC()}, nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	resp, err := s.do(ctx, http.MethodDelete, s.opURL(p, "DELETE", nil), nil, "")
	if err != nil {
		return false, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return false, s.errorFrom(resp, "delete", key)
	}
	var out struct {
		Boolean bool `json:"boolean"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("webhdfs delete %s: decode: %w", key, err)
	}
	return out.Boolean, nil
}

// List is not recursive: it lists the directory named by the prefix up to its
// last slash and keeps the files whose key starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	dirKey := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dirKey = prefix[:i]
	}
	dir := path.Join(s.root, dirKey)
	resp, err := s.do(ctx, http.MethodGet, s.opURL(dir, "LISTSTATUS", nil), nil, "")
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, s.errorFrom(resp, "list", prefix)
	}
	var out struct {
		FileStatuses struct {
			FileStatus []fileStatus `json:"FileStatus"`
		} `json:"FileStatuses"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("webhdfs list %s: decode: %w", prefix, err)
	}
	var infos []core.Info
	for _, st := range out.FileStatuses.FileStatus {
		if st.Type != "FILE" {
			continue
		}
		key := st.PathSuffix
		if dirKey != "" {
			key = dirKey + "/" + st.PathSuffix
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		infos = append(infos, core.Info{Key: key, Size: st.Length, LastModified: time.UnixMilli(st.ModificationTime).UTC()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// MakeDir issues MKDIRS for dir, resolved under the store root. Parents are
// created as needed and an existing directory is not an error.
func (s *Store) MakeDir(ctx context.Context, dir string) error {
	d := strings.Trim(dir, "/")
	if core.HasParentSegment(d) {
		return fmt.Errorf("invalid dir contains '..' segment")
	}
	p := path.Join(s.root, d)
	resp, err := s.do(ctx, http.MethodPut, s.opURL(p, "MKDIRS", nil), nil, "")
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return s.errorFrom(resp, "mkdirs", p)
	}
	var out struct {
		Boolean bool `json:"boolean"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("webhdfs mkdirs %s: decode: %w", p, err)
	}
	if !out.Boolean {
		return fmt.Errorf("webhdfs mkdirs %s: refused", p)
	}
	return nil
}

func (s *Store) status(ctx context.Context, p string) (fileStatus, error) {
	resp, err := s.do(ctx, http.MethodGet, s.opURL(p, "GETFILESTATUS", nil), nil, "")
	if err != nil {
		return fileStatus{}, err
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fileStatus{}, s.errorFrom(resp, "status", p)
	}
	var out struct {
		FileStatus fileStatus `json:"FileStatus"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fileStatus{}, fmt.Errorf("webhdfs status %s: decode: %w", p, err)
	}
	return out.FileStatus, nil
}

func (s *Store) pathFor(key string) (string, error) {
	k := strings.TrimPrefix(key, "/")
	if strings.TrimSpace(k) == "" {
		return "", fmt.Errorf("empty key")
	}
	if core.HasParentSegment(k) {
		return "", fmt.Errorf("invalid key contains '..' segment")
	}
	return path.Join(s.root, k), nil
}

func (s *Store) opURL(p, op string, extra url.Values) string {
	u := *s.base
	u.Path = u.Path + apiPrefix + p
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("op", op)
	if s.user != "" {
		q.Set("user.name", s.user)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Store) do(ctx context.Context, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return s.client.Do(req)
}

// errorFrom turns a non-success response into an error, wrapping
// core.ErrNotFound for 404 / FileNotFoundException.
func (s *Store) errorFrom(resp *http.Response, op, key string) error {
	var re remoteException
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(b, &re)
	msg := re.RemoteException.Message
	if msg == "" {
		msg = strings.TrimSpace(string(b))
	}
	if resp.StatusCode == http.StatusNotFound || re.RemoteException.Exception == "FileNotFoundException" {
		return fmt.Errorf("webhdfs %s %s: %w", op, key, core.ErrNotFound)
	}
	return &RemoteError{Op: op, Key: key, Status: resp.StatusCode, Exception: re.RemoteException.Exception, Message: msg}
}

// RemoteError reports a failed WebHDFS call.
type RemoteError struct {
	Op        string
	Key       string
	Status    int
	Exception string
	Message   string
}

func (e *RemoteError) Error() string {
	if e.Exception != "" {
		return fmt.Sprintf("webhdfs %s %s: %d %s: %s", e.Op, e.Key, e.Status, e.Exception, e.Message)
	}
	return fmt.Sprintf("webhdfs %s %s: %d %s", e.Op, e.Key, e.Status, e.Message)
}

// IsRemoteError reports whether err carries a WebHDFS error response.
func IsRemoteError(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

func isRedirect(code int) bool {
	return code == http.StatusTemporaryRedirect || code == http.StatusFound || code == http.StatusSeeOther || code == http.StatusPermanentRedirect
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
