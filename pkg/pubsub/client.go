package pubsub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/autoescrow-backend/pkg/config"
	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
)

// Escrow events are small and latency matters more than batching.
const (
	publishDelayThreshold = 50 * time.Millisecond
	publishCountThreshold = 50
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client with the two topics the engine
// publishes to. The escrow topic is ordered per transaction.
type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
	ordered   map[string]bool
}

// NewClient dials Pub/Sub (or the emulator named by PUBSUB_EMULATOR_HOST)
// and fails if any configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	inner, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{
		client:    inner,
		projectID: project,
		topics:    topics,
		ordered:   map[string]bool{strings.TrimSpace(cfg.EscrowTopic): true},
	}
	if err := c.Ping(ctx); err != nil {
		_ = inner.Close()
		return nil, err
	}

	if logg != nil {
		fields := map[string]any{"project_id": project, "topics": topics}
		if host := os.Getenv("PUBSUB_EMULATOR_HOST"); host != "" {
			fields["emulator"] = host
		}
		logg.Info(logg.WithFields(ctx, fields), "pubsub client initialized")
	}
	return c, nil
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, name := range []string{cfg.NotificationTopic, cfg.EscrowTopic} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

// Ping checks every configured topic concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range c.topics {
		g.Go(func() error { return c.checkTopic(gctx, name) })
	}
	return g.Wait()
}

func (c *Client) checkTopic(ctx context.Context, name string) error {
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return fmt.Errorf("topic %q not configured", name)
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %q does not exist", name)
	default:
		return fmt.Errorf("checking topic %q: %w", name, err)
	}
}

// Publisher returns a publisher for a topic id or full resource name.
// Callers own the handle and must Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := topicResourceName(c.projectID, name)
	if full == "" {
		return nil
	}
	p := c.client.Publisher(full)
	p.EnableMessageOrdering = c.ordered[strings.TrimSpace(name)]
	p.PublishSettings.DelayThreshold = publishDelayThreshold
	p.PublishSettings.CountThreshold = publishCountThreshold
	return p
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	if p := strings.TrimSpace(projectID); p != "" {
		return "projects/" + p + "/topics/" + n
	}
	return ""
}
