package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// CodeRequestNotice tells the request producer that a dynamic table was just created and the
// (batch, product, level) request rows were flipped back to "requested".
type CodeRequestNotice struct {
	BatchId            string    `json:"batch_id"`
	ProductId          string    `json:"product_id"`
	PackagingHierarchy string    `json:"packaging_hierarchy"`
	TableName          string    `json:"table_name"`
	RunId              string    `json:"run_id"`
	NotifiedAt         time.Time `json:"notified_at"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	// Load env from .env
	godotenv.Load()
}

func getPubSubProjectID() string {
	// Prefer explicit override.
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Uses Application Default Credentials.
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PubSubNotifier publishes CodeRequestNotice messages to one topic.
type PubSubNotifier struct {
	Topic string
}

// NewPubSubNotifier returns nil when topic is empty, which callers treat as "notifications off".
func NewPubSubNotifier(topic string) *PubSubNotifier {
	if topic == "" {
		return nil
	}
	return &PubSubNotifier{Topic: topic}
}

// NotifyCodeRequest publishes the notice and waits for the server-assigned message id.
func (n *PubSubNotifier) NotifyCodeRequest(ctx context.Context, notice CodeRequestNotice) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	msgJSON, err := json.Marshal(notice)
	if err != nil {
		return "", err
	}
	t := client.Topic(n.Topic)
	defer t.Stop()
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"packaging_hierarchy": notice.PackagingHierarchy,
		},
	})
	return result.Get(ctx)
}

func ClosePubSub() {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient == nil {
		return
	}
	if err := pubsubClient.Close(); err != nil {
		log.Printf("failed to close pubsub client: %v", err)
	}
	pubsubClient = nil
}
