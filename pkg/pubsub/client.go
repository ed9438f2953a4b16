// Package pubsub holds the Pub/Sub v2 client the outbox publisher delivers
// certification events through.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flagit/flagit-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("at least one pubsub topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails unless every topic already exists.
// Topics are provisioned by infrastructure, never created here.
func NewClient(ctx context.Context, projectID string, topics []string, logg *logger.Logger) (*Client, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	names := normalizeTopics(topics)
	if len(names) == 0 {
		return nil, errNoTopics
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{
		client:     raw,
		projectID:  projectID,
		topics:     names,
		publishers: make(map[string]*pubsub.Publisher, len(names)),
	}
	if err := c.Ping(ctx); err != nil {
		return nil, multierr.Append(err, raw.Close())
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"project_id": projectID,
			"topics":     names,
		}), "pubsub.connected")
	}
	return c, nil
}

func normalizeTopics(topics []string) []string {
	seen := make(map[string]struct{}, len(topics))
	names := make([]string, 0, len(topics))
	for _, name := range topics {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Publisher returns the cached publisher for a topic id or resource name.
// Message ordering is on, so events for one store keep their commit order.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	resource := c.topicResourceName(name)
	if resource == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[resource]; ok {
		return p
	}
	p := c.client.Publisher(resource)
	p.EnableMessageOrdering = true
	c.publishers[resource] = p
	return p
}

// Ping checks that every configured topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	var err error
	for _, name := range c.topics {
		multierr.AppendInto(&err, c.checkTopic(ctx, name))
	}
	return err
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	resource := c.topicResourceName(name)
	if resource == "" {
		return fmt.Errorf("topic %q has no resource name", name)
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resource})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", resource)
	default:
		return fmt.Errorf("get topic %s: %w", resource, err)
	}
}

// Close flushes pending publishes, then releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for resource, p := range c.publishers {
		p.Stop()
		delete(c.publishers, resource)
	}
	c.mu.Unlock()
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case c.projectID == "":
		return ""
	}
	return "projects/" + c.projectID + "/topics/" + name
}
