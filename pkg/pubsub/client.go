// Package pubsub wraps the Pub/Sub v2 client with the lifecycle stream's
// topic and subscription.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/machawaste/wastelink-backend/pkg/config"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

// Role selects which lifecycle resource a process depends on and therefore
// which one Ping checks.
type Role int

const (
	RolePublisher Role = iota + 1
	RoleSubscriber
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	role      Role
}

// NewClient dials Pub/Sub and confirms the resource the role needs exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, role Role, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: projectID, cfg: cfg, role: role}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        cfg.LifecycleTopic,
			"subscription": cfg.LifecycleSubscription,
		}), "pubsub client initialized")
	}
	return c, nil
}

// Ping checks that the role's lifecycle resource exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	switch c.role {
	case RolePublisher:
		name, err := requiredName(c.projectID, "topics", c.cfg.LifecycleTopic)
		if err != nil {
			return err
		}
		_, err = c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		return lookupError("topic", name, err)
	case RoleSubscriber:
		name, err := requiredName(c.projectID, "subscriptions", c.cfg.LifecycleSubscription)
		if err != nil {
			return err
		}
		_, err = c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		return lookupError("subscription", name, err)
	default:
		return fmt.Errorf("unknown pubsub role %d", c.role)
	}
}

func requiredName(projectID, kind, name string) (string, error) {
	full := resourceName(projectID, kind, name)
	if full == "" {
		return "", fmt.Errorf("pubsub %s name is required", strings.TrimSuffix(kind, "s"))
	}
	return full, nil
}

func lookupError(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("look up %s %q: %w", kind, name, err)
	}
}

// Subscription returns a subscriber for an ID or full resource name.
func (c *Client) Subscription(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "subscriptions", name)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// LifecycleSubscription returns the subscriber for the lifecycle stream.
func (c *Client) LifecycleSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscription(c.cfg.LifecycleSubscription)
}

// Publisher returns an ordering-enabled publisher for a topic ID or full
// resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := resourceName(c.projectID, "topics", name)
	if full == "" {
		return nil
	}
	pub := c.client.Publisher(full)
	pub.EnableMessageOrdering = true
	return pub
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands an ID to projects/<p>/<kind>/<id>. Names that are
// already fully qualified for kind pass through.
func resourceName(projectID, kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/" + kind + "/" + name
}
