package earthengine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/nao1215/forestloss/internal/loss"
	"google.golang.org/api/option"
	htransport "google.golang.org/api/transport/http"
)

// Session owns the authenticated Earth Engine client of the process.
type Session struct {
	project         string
	endpoint        string
	credentialsFile string
	clientOptions   []option.ClientOption
	logger          *slog.Logger

	mu     sync.Mutex
	client *restClient
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithCredentialsFile uses a service account or user credentials file.
func WithCredentialsFile(path string) SessionOption {
	return func(s *Session) {
		s.credentialsFile = path
	}
}

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) SessionOption {
	return func(s *Session) {
		s.endpoint = endpoint
	}
}

// WithClientOptions appends raw client options. Tests use it to point the
// session at a local server.
func WithClientOptions(opts ...option.ClientOption) SessionOption {
	return func(s *Session) {
		s.clientOptions = append(s.clientOptions, opts...)
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates a session for the given Google Cloud project.
// No network activity happens until EnsureSession is called.
func NewSession(project string, opts ...SessionOption) *Session {
	s := &Session{project: project, endpoint: DefaultEndpoint}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Project returns the resource name of the project, "projects/<id>".
func (s *Session) Project() string {
	return "projects/" + s.project
}

// EnsureSession builds the Earth Engine client if it does not exist yet.
// It is safe to call concurrently and repeatedly. A failed attempt is not
// remembered, so a later call tries again. Credential discovery may reach
// the metadata server, so it runs without holding the lock.
func (s *Session) EnsureSession(ctx context.Context) error {
	_, err := s.restClient(ctx)
	return err
}

// restClient returns the client, building it on first use.
func (s *Session) restClient(ctx context.Context) (*restClient, error) {
	if c := s.current(); c != nil {
		return c, nil
	}
	if s.project == "" {
		return nil, fmt.Errorf("%w: %w", loss.ErrServiceUnavailable, ErrNoProject)
	}

	httpClient, _, err := htransport.NewClient(ctx, s.options()...)
	if err != nil {
		return nil, fmt.Errorf("%w: create http client: %w", loss.ErrServiceUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		s.client = &restClient{http: httpClient, endpoint: s.endpoint}
		s.logger.Debug("earth engine session established", "project", s.project)
	}
	return s.client, nil
}

func (s *Session) current() *restClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Session) options() []option.ClientOption {
	opts := []option.ClientOption{
		option.WithScopes(earthengineScope, cloudPlatformScope),
	}
	if s.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.credentialsFile))
	} else {
		opts = append(opts, clientOptionsFromEnv()...)
	}
	return append(opts, s.clientOptions...)
}

// clientOptionsFromEnv reads credentials from the environment. The JSON
// variable may hold the credentials themselves or a path to them.
func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
