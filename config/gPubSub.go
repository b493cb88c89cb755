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

// AuditMessage is the wire format of the audit side-channel. Consumers live
// outside this service; publishing is best-effort and must never block or
// fail a financial operation.
type AuditMessage struct {
	BusinessId    string    `json:"business_id"`
	UserId        int       `json:"user_id"`
	Action        string    `json:"action"`
	ReferenceId   int       `json:"reference_id"`
	ReferenceType string    `json:"reference_type"`
	Detail        string    `json:"detail"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationId string    `json:"correlation_id"`
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
	// Cloud Run/Cloud Functions often set this.
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// GetPubSubClient returns a Pub/Sub client, initializing it on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var (
		c   *pubsub.Client
		err error
	)
	if credJSON != "" {
		c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
	} else {
		// Uses Application Default Credentials (Cloud Run service account or GOOGLE_APPLICATION_CREDENTIALS).
		c, err = pubsub.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, err
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

// PublishAuditMessage hands one audit event to the Pub/Sub client and returns
// without waiting for the server ack. The ack (or failure) is awaited on a
// goroutine and logged there; an error return here means the event never left
// the process (no client, no topic, marshal failure). Callers are expected to
// treat errors as log-only.
func PublishAuditMessage(ctx context.Context, msg AuditMessage) error {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return err
	}

	topicName := os.Getenv("AUDIT_TOPIC")
	if topicName == "" {
		return errors.New("AUDIT_TOPIC is required")
	}

	t := client.Topic(topicName)
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Detach from the request context: the caller's request may finish before
	// the server acks, and its cancellation must not abort the publish.
	result := t.Publish(context.WithoutCancel(ctx), &pubsub.Message{
		Data: msgJSON,
	})
	go func() {
		ackCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := result.Get(ackCtx); err != nil {
			LogError(GetLogger(), "gPubSub.go", "PublishAuditMessage", "Get publish result", msg.Action, err)
		}
	}()
	return nil
}
