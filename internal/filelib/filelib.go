// Package filelib implements the File Library Sync (§4.7) and the
// destructive Drop Operation (§4.8): syncing one tenant's file library into
// another by filename, and batch-deleting a destination's file library on
// operator confirmation.
package filelib

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"duplicator/internal/gql"
	"duplicator/internal/index"
	"duplicator/internal/jsonl"
	"duplicator/internal/logging"
	"duplicator/internal/naturalkey"
	"duplicator/internal/record"
)

// Entry is one source file as recorded in files.jsonl.
type Entry struct {
	Filename string
	URL      string
	Alt      string
}

// Result is the Sync's post-pass dual view: the rewriter consults
// SourceURLToID for file references carried over from the source dump;
// FilenameMap is retained for future runs' pre-apply idempotency check.
type Result struct {
	SourceURLToID map[string]string
	FilenameMap   map[string]index.FileEntry
}

// Syncer drives the File Library Sync against one destination tenant.
type Syncer struct {
	Dest       *gql.Client
	HTTPClient *http.Client
	log        *zap.SugaredLogger
}

// NewSyncer constructs a Syncer. A plain http.Client is used to fetch
// non-CDN source blobs for the staged-upload branch; callers may override
// it (e.g. in tests) via the HTTPClient field.
func NewSyncer(dest *gql.Client) *Syncer {
	return &Syncer{
		Dest:       dest,
		HTTPClient: http.DefaultClient,
		log:        logging.Get(logging.CategoryFilelib),
	}
}

// Stats accumulates the sync's (or drop's) outcome counts. Deleted is only
// ever populated by Drop; Created/Updated/Skipped are only ever populated
// by Sync.
type Stats struct {
	Total   int
	Created int
	Updated int
	Skipped int
	Deleted int
	Failed  int
	Errors  []string
}

const maxSampledErrors = 10

func (s *Stats) recordError(err error) {
	s.Failed++
	if len(s.Errors) < maxSampledErrors {
		s.Errors = append(s.Errors, err.Error())
	}
}

func (s *Stats) merge(o Stats) {
	s.Total += o.Total
	s.Created += o.Created
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Deleted += o.Deleted
	s.Failed += o.Failed
	for _, e := range o.Errors {
		if len(s.Errors) >= maxSampledErrors {
			break
		}
		s.Errors = append(s.Errors, e)
	}
}

// cdnMarker is the substring that identifies a source URL as already hosted
// on the platform's CDN, eligible for the direct-from-URL creation branch.
const cdnMarker = "cdn.shopify.com"

// readEntries loads files.jsonl from dir.
func readEntries(dir string) ([]Entry, error) {
	path := filepath.Join(dir, "files.jsonl")
	recs, err := jsonl.DecodeAll[record.Record](path, func(lineNumber int, line string, err error) error {
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filelib: read files.jsonl: %w", err)
	}
	entries := make([]Entry, 0, len(recs))
	for _, r := range recs {
		url, _ := r.Data["url"].(string)
		alt, _ := r.Data["alt"].(string)
		if url == "" {
			continue
		}
		entries = append(entries, Entry{Filename: r.NaturalKey, URL: url, Alt: alt})
	}
	return entries, nil
}

// Sync runs the pre-pass/per-file/post-pass structure of §4.7 against the
// dump directory's files.jsonl, fanning individual file operations out
// across workerCount concurrent workers.
func (s *Syncer) Sync(ctx context.Context, dir string, workerCount int) (Stats, Result, error) {
	entries, err := readEntries(dir)
	if err != nil {
		return Stats{}, Result{}, err
	}

	existing, err := s.buildExistingByFilename(ctx)
	if err != nil {
		return Stats{}, Result{}, fmt.Errorf("filelib: pre-pass: %w", err)
	}

	result := Result{
		SourceURLToID: make(map[string]string, len(entries)),
		FilenameMap:   existing,
	}

	stats := runPool(ctx, entries, workerCount, func(ctx context.Context, e Entry) Stats {
		st, id, err := s.syncOne(ctx, e, existing)
		if err != nil {
			var one Stats
			one.Total = 1
			one.recordError(fmt.Errorf("filelib: %s: %w", e.Filename, err))
			return one
		}
		if id != "" {
			result.SourceURLToID[e.URL] = id
		}
		return st
	})

	return stats, result, nil
}

// syncOne applies the pre-apply idempotency rule: hash by filename only,
// skip if identical, update if alt text differs, else create.
func (s *Syncer) syncOne(ctx context.Context, e Entry, existing map[string]index.FileEntry) (Stats, string, error) {
	var stats Stats
	stats.Total = 1

	if entry, ok := existing[e.Filename]; ok {
		if entry.AltText == e.Alt {
			stats.Skipped++
			return stats, entry.ID, nil
		}
		if err := s.updateAlt(ctx, entry.ID, e.Alt); err != nil {
			return Stats{}, "", err
		}
		existing[e.Filename] = index.FileEntry{ID: entry.ID, AltText: e.Alt}
		stats.Updated++
		return stats, entry.ID, nil
	}

	id, err := s.createFile(ctx, e)
	if err != nil {
		return Stats{}, "", err
	}
	existing[e.Filename] = index.FileEntry{ID: id, AltText: e.Alt}
	stats.Created++
	return stats, id, nil
}

// createFile implements the two-branch upload sub-protocol of §4.6: a
// platform-CDN source URL is created directly; anything else is fetched and
// pushed through a staged upload first.
func (s *Syncer) createFile(ctx context.Context, e Entry) (string, error) {
	if strings.Contains(e.URL, cdnMarker) {
		return s.createFromURL(ctx, e.URL, e.Alt)
	}
	return s.createViaStagedUpload(ctx, e)
}

func contentTypeFor(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return "IMAGE"
	case ".mp4", ".mov", ".webm":
		return "VIDEO"
	default:
		return "FILE"
	}
}

const fileCreateMutation = `
mutation FileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files { id }
    userErrors { field message }
  }
}`

func (s *Syncer) createFromURL(ctx context.Context, url, alt string) (string, error) {
	vars := map[string]any{
		"files": []map[string]any{{
			"alt":            alt,
			"contentType":    contentTypeFor(url),
			"originalSource": url,
		}},
	}
	return s.doFileCreate(ctx, vars)
}

const stagedUploadsCreateMutation = `
mutation StagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}`

type stagedTarget struct {
	URL         string `json:"url"`
	ResourceURL string `json:"resourceUrl"`
	Parameters  []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"parameters"`
}

func (s *Syncer) createViaStagedUpload(ctx context.Context, e Entry) (string, error) {
	body, err := s.fetch(ctx, e.URL)
	if err != nil {
		return "", fmt.Errorf("fetch source blob: %w", err)
	}
	defer body.Close()

	target, err := s.requestStagedUpload(ctx, e.Filename, contentTypeFor(e.Filename))
	if err != nil {
		return "", err
	}
	if err := s.pushToStagedTarget(ctx, target, e.Filename, body); err != nil {
		return "", fmt.Errorf("push staged upload: %w", err)
	}

	vars := map[string]any{
		"files": []map[string]any{{
			"alt":            e.Alt,
			"contentType":    contentTypeFor(e.Filename),
			"originalSource": target.ResourceURL,
		}},
	}
	return s.doFileCreate(ctx, vars)
}

func (s *Syncer) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Syncer) requestStagedUpload(ctx context.Context, filename, contentType string) (stagedTarget, error) {
	vars := map[string]any{
		"input": []map[string]any{{
			"filename":   filename,
			"mimeType":   mimeTypeFor(contentType),
			"httpMethod": "POST",
			"resource":   stagedResourceFor(contentType),
		}},
	}
	data, err := s.Dest.Do(ctx, stagedUploadsCreateMutation, vars)
	if err != nil {
		return stagedTarget{}, fmt.Errorf("stagedUploadsCreate: %w", err)
	}
	var parsed struct {
		StagedUploadsCreate struct {
			StagedTargets []stagedTarget  `json:"stagedTargets"`
			UserErrors    []userErrorJSON `json:"userErrors"`
		} `json:"stagedUploadsCreate"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stagedTarget{}, fmt.Errorf("stagedUploadsCreate: decode: %w", err)
	}
	if len(parsed.StagedUploadsCreate.UserErrors) > 0 {
		return stagedTarget{}, fmt.Errorf("stagedUploadsCreate: %s", parsed.StagedUploadsCreate.UserErrors[0].Message)
	}
	if len(parsed.StagedUploadsCreate.StagedTargets) == 0 {
		return stagedTarget{}, fmt.Errorf("stagedUploadsCreate: no staged target returned")
	}
	return parsed.StagedUploadsCreate.StagedTargets[0], nil
}

func (s *Syncer) pushToStagedTarget(ctx context.Context, target stagedTarget, filename string, body io.Reader) error {
	var buf strings.Builder
	w := multipart.NewWriter(&buf)
	for _, p := range target.Parameters {
		if err := w.WriteField(p.Name, p.Value); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, strings.NewReader(buf.String()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("staged upload target returned status %d", resp.StatusCode)
	}
	return nil
}

func mimeTypeFor(contentType string) string {
	switch contentType {
	case "IMAGE":
		return "image/jpeg"
	case "VIDEO":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}

func stagedResourceFor(contentType string) string {
	switch contentType {
	case "IMAGE":
		return "IMAGE"
	case "VIDEO":
		return "VIDEO"
	default:
		return "FILE"
	}
}

type userErrorJSON struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

func (s *Syncer) doFileCreate(ctx context.Context, vars map[string]any) (string, error) {
	data, err := s.Dest.Do(ctx, fileCreateMutation, vars)
	if err != nil {
		return "", fmt.Errorf("fileCreate: %w", err)
	}
	var parsed struct {
		FileCreate struct {
			Files []struct {
				ID string `json:"id"`
			} `json:"files"`
			UserErrors []userErrorJSON `json:"userErrors"`
		} `json:"fileCreate"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("fileCreate: decode: %w", err)
	}
	if len(parsed.FileCreate.UserErrors) > 0 {
		return "", fmt.Errorf("fileCreate: %s", parsed.FileCreate.UserErrors[0].Message)
	}
	if len(parsed.FileCreate.Files) == 0 {
		return "", fmt.Errorf("fileCreate: no file returned")
	}
	return parsed.FileCreate.Files[0].ID, nil
}

const fileUpdateMutation = `
mutation FileUpdate($files: [FileUpdateInput!]!) {
  fileUpdate(files: $files) {
    files { id }
    userErrors { field message }
  }
}`

func (s *Syncer) updateAlt(ctx context.Context, id, alt string) error {
	vars := map[string]any{
		"files": []map[string]any{{"id": id, "alt": alt}},
	}
	data, err := s.Dest.Do(ctx, fileUpdateMutation, vars)
	if err != nil {
		return fmt.Errorf("fileUpdate: %w", err)
	}
	var parsed struct {
		FileUpdate struct {
			UserErrors []userErrorJSON `json:"userErrors"`
		} `json:"fileUpdate"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("fileUpdate: decode: %w", err)
	}
	if len(parsed.FileUpdate.UserErrors) > 0 {
		return fmt.Errorf("fileUpdate: %s", parsed.FileUpdate.UserErrors[0].Message)
	}
	return nil
}

const destFilesQuery = `
query DestFiles($after: String) {
  files(first: 100, after: $after) {
    nodes {
      id
      alt
      ... on MediaImage { image { url } }
      ... on GenericFile { url }
      ... on Video { sources { url } }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

type destFileNode struct {
	ID    string `json:"id"`
	Alt   string `json:"alt"`
	Image struct {
		URL string `json:"url"`
	} `json:"image"`
	URL     string `json:"url"`
	Sources []struct {
		URL string `json:"url"`
	} `json:"sources"`
}

func (n destFileNode) contentURL() string {
	if n.Image.URL != "" {
		return n.Image.URL
	}
	if n.URL != "" {
		return n.URL
	}
	if len(n.Sources) > 0 {
		return n.Sources[0].URL
	}
	return ""
}

// buildExistingByFilename is the pre-pass of §4.7: page through every
// existing destination file, keyed by filename (derived the same way the
// dump writer derives it, so a repeated run matches).
func (s *Syncer) buildExistingByFilename(ctx context.Context) (map[string]index.FileEntry, error) {
	out := make(map[string]index.FileEntry)

	extract := func(data json.RawMessage) (gql.Page, error) {
		var parsed struct {
			Files struct {
				Nodes    json.RawMessage `json:"nodes"`
				PageInfo gql.PageInfo    `json:"pageInfo"`
			} `json:"files"`
		}
		if err := json.Unmarshal(data, &parsed); err != nil {
			return gql.Page{}, err
		}
		return gql.Page{Nodes: parsed.Files.Nodes, PageInfo: parsed.Files.PageInfo}, nil
	}

	err := s.Dest.Paginate(ctx, destFilesQuery, nil, extract, func(p gql.Page) error {
		var nodes []destFileNode
		if err := json.Unmarshal(p.Nodes, &nodes); err != nil {
			return err
		}
		for _, n := range nodes {
			url := n.contentURL()
			if url == "" {
				continue
			}
			filename := naturalkey.FilenameFromURL(url)
			out[filename] = index.FileEntry{ID: n.ID, AltText: n.Alt}
		}
		return nil
	})
	return out, err
}
