// pkg/pubsub/client.go
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/imageguard-labs/imageguard-backend/pkg/config"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Scan lifecycle event types published to the scan events topic.
const (
	EventScanCompleted = "scan.completed"
	EventScanFailed    = "scan.failed"
)

// ScanEvent is the payload published after a scan reaches a terminal state.
type ScanEvent struct {
	Type       string    `json:"type"`
	OrgID      string    `json:"org_id"`
	ScanID     string    `json:"scan_id"`
	AssetID    string    `json:"asset_id"`
	MatchCount int       `json:"match_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient creates a Pub/Sub v2 client and verifies the scan events topic
// exists when one is configured.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}

	if err := c.ensureTopicsConfigured(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}

	return c, nil
}

func (c *Client) ensureTopicsConfigured(ctx context.Context) error {
	topic := strings.TrimSpace(c.cfg.ScanEventsTopic)
	if topic == "" {
		return nil
	}
	return c.ensureTopicExists(ctx, topic)
}

func (c *Client) ensureTopicExists(ctx context.Context, name string) error {
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return fmt.Errorf("topic %q not configured", name)
	}

	_, err := c.client.TopicAdminClient.GetTopic(
		ctx,
		&pubsubpb.GetTopicRequest{Topic: fullName},
	)
	if err != nil {
		// v2 uses gRPC errors; NotFound means the topic doesn't exist.
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", name)
		}
		return fmt.Errorf("checking topic %q: %w", name, err)
	}

	return nil
}

// Publisher returns a publisher handle for the given topic ID/resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.topicResourceName(name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// ScanEventsPublisher returns the configured scan events publisher, or nil
// when no topic is configured.
func (c *Client) ScanEventsPublisher() *pubsub.Publisher {
	if c == nil {
		return nil
	}
	return c.Publisher(c.cfg.ScanEventsTopic)
}

// PublishScanEvent publishes a scan lifecycle event and waits for the server
// acknowledgement.
func (c *Client) PublishScanEvent(ctx context.Context, event ScanEvent) error {
	publisher := c.ScanEventsPublisher()
	if publisher == nil {
		return errors.New("scan events topic not configured")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding scan event: %w", err)
	}

	result := publisher.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{"type": event.Type},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing scan event: %w", err)
	}
	return nil
}

// Ping verifies Pub/Sub connectivity by checking the configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureTopicsConfigured(ctx)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) topicResourceName(name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", p, n)
}
