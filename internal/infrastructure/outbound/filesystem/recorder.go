package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mimicry/internal/domain/proxy"
	"github.com/sophialabs/mimicry/internal/infrastructure/ports"
)

var _ ports.Recorder = (*Recorder)(nil)

// Recorder turns proxied exchanges into definition files. Each exchange
// becomes one inactive endpoint whose default response is the upstream
// answer, so the file is picked up on reload without shadowing the
// endpoint that proxied it.
type Recorder struct {
	root  string
	dir   string
	clock ports.Clock
}

// NewRecorder writes into subdir below root.
func NewRecorder(root, subdir string, clock ports.Clock) (*Recorder, error) {
	dir := filepath.Join(root, subdir)
	if err := within(root, dir); err != nil {
		return nil, fmt.Errorf("record directory %q: %w", subdir, err)
	}
	return &Recorder{root: root, dir: dir, clock: clock}, nil
}

// Dir returns the directory recordings are written to.
func (r *Recorder) Dir() string { return r.dir }

// Record writes ex as <dir>/<id>.yaml and returns once it is on disk.
func (r *Recorder) Record(ctx context.Context, ex proxy.Exchange) error {
	if ex.Response == nil {
		return fmt.Errorf("exchange %s %s has no response", ex.Method, ex.Path)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	id := "recorded-" + uuid.NewString()
	inactive := false
	headers, err := recordedHeaders(ex.Response.Headers)
	if err != nil {
		return err
	}
	doc := yamlDocument{Endpoints: []yamlEndpoint{{
		ID:        id,
		Service:   "recorded-" + ex.ServiceName,
		Path:      ex.Path,
		Method:    strings.ToUpper(ex.Method),
		Active:    &inactive,
		CreatedAt: r.clock.Now(),
		DefaultResponse: &yamlResponse{
			Status:  ex.Response.StatusCode,
			Headers: headers,
			Body:    string(ex.Response.Body),
		},
	}}}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}
	target := filepath.Join(r.dir, id+".yaml")
	if err := within(r.root, target); err != nil {
		return err
	}
	return atomicWriteFile(target, data)
}

func recordedHeaders(h http.Header) (jsonBlob, error) {
	if len(h) == 0 {
		return "", nil
	}
	flat := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) == 0 || strings.EqualFold(k, "Content-Length") || proxy.IsHopByHop(k) {
			continue
		}
		flat[k] = strings.Join(vs, ", ")
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("failed to encode recorded headers: %w", err)
	}
	return jsonBlob(data), nil
}
