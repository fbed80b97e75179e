package pubsub

import (
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/config"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

var (
	// ErrNotInitialized is returned by every helper on a zero Client.
	ErrNotInitialized = errors.New("pubsub client not initialized")

	errProjectIDRequired = errors.New("gcp project id is required")
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// attributed messages carry routing metadata next to their payload.
type attributed interface {
	Attributes() map[string]string
}

// Client publishes channel messages to GCP Pub/Sub topics. A channel maps to
// the topic returned by TopicID.
type Client struct {
	client    *gcppubsub.Client
	projectID string
	topics    []string

	newPublisher func(fullName string) publisher
	lookupTopic  func(ctx context.Context, fullName string) error

	mu         sync.Mutex
	publishers map[string]publisher
}

// NewClient creates a Pub/Sub v2 client and ensures the topics behind channels exist.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger, channels ...string) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := gcppubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := newClient(gcp.ProjectID, channels,
		func(fullName string) publisher {
			return &gcpPublisher{Publisher: psClient.Publisher(fullName)}
		},
		func(ctx context.Context, fullName string) error {
			_, err := psClient.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: fullName})
			return err
		},
	)
	c.client = psClient

	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", c.topics), "pubsub client initialized")
	}
	return c, nil
}

func newClient(projectID string, channels []string, newPublisher func(string) publisher, lookupTopic func(context.Context, string) error) *Client {
	topics := make([]string, 0, len(channels))
	for _, channel := range channels {
		if id := TopicID(channel); id != "" {
			topics = append(topics, id)
		}
	}
	return &Client{
		projectID:    projectID,
		topics:       topics,
		newPublisher: newPublisher,
		lookupTopic:  lookupTopic,
		publishers:   make(map[string]publisher),
	}
}

// TopicID maps a channel such as "pf:events:orders" to a valid topic ID ("pf-events-orders").
func TopicID(channel string) string {
	return strings.ReplaceAll(strings.Trim(strings.TrimSpace(channel), ":"), ":", "-")
}

// Publish sends message to the topic behind channel and waits for the server ack.
// []byte and string are sent as-is, encoding.BinaryMarshaler values through
// MarshalBinary and anything else as JSON.
func (c *Client) Publish(ctx context.Context, channel string, message any) (int64, error) {
	if c == nil || c.newPublisher == nil {
		return 0, ErrNotInitialized
	}
	fullName := c.topicResourceName(TopicID(channel))
	if fullName == "" {
		return 0, fmt.Errorf("topic not configured for channel %q", channel)
	}

	data, err := encode(message)
	if err != nil {
		return 0, fmt.Errorf("encode message for %s: %w", fullName, err)
	}
	msg := &gcppubsub.Message{Data: data}
	if attrs, ok := message.(attributed); ok {
		msg.Attributes = attrs.Attributes()
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := c.publisher(fullName).Publish(publishCtx, msg)
	if result == nil {
		return 0, fmt.Errorf("publisher returned nil for topic %s", fullName)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return 0, fmt.Errorf("publish to %s: %w", fullName, err)
	}
	return 1, nil
}

// Ping verifies Pub/Sub connectivity by checking the configured topics exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.lookupTopic == nil {
		return ErrNotInitialized
	}
	for _, topic := range c.topics {
		if err := c.lookupTopic(ctx, c.topicResourceName(topic)); err != nil {
			// v2 uses gRPC errors; NotFound means the topic doesn't exist.
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("topic %q does not exist", topic)
			}
			return fmt.Errorf("checking topic %q: %w", topic, err)
		}
	}
	return nil
}

// Close flushes every topic publisher, then releases the Pub/Sub client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()

	var err error
	if c.client != nil {
		err = multierr.Append(err, c.client.Close())
	}
	return err
}

func (c *Client) publisher(fullName string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.publishers[fullName]
	if !ok {
		pub = c.newPublisher(fullName)
		c.publishers[fullName] = pub
	}
	return pub
}

func (c *Client) topicResourceName(name string) string {
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

func encode(message any) ([]byte, error) {
	switch v := message.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case encoding.BinaryMarshaler:
		return v.MarshalBinary()
	default:
		return json.Marshal(v)
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
