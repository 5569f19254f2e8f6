// Package events publishes dataset lifecycle notifications over NATS so
// downstream consumers can re-query the registry after a refresh. Publishing
// is best-effort.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectDatasetRefreshed carries one message per completed refresh.
const SubjectDatasetRefreshed = "registry.dataset.refreshed"

// DatasetRefreshed is the published payload.
type DatasetRefreshed struct {
	IngestionID int64     `json:"ingestionId"`
	DataVersion *string   `json:"dataVersion"`
	CompletedAt time.Time `json:"completedAt"`
}

// Publisher sends registry events to NATS.
type Publisher struct {
	nc     *nats.Conn
	logger *log.Logger
}

// Connect dials the NATS server. Reconnects are handled by the client.
func Connect(url string, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{nc: nc, logger: logger}, nil
}

// DatasetRefreshed announces a completed refresh. Errors are logged, never
// returned: a lost notification must not fail the run that produced it.
func (p *Publisher) DatasetRefreshed(event DatasetRefreshed) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("[events] marshal refresh event: %v", err)
		return
	}
	if err := p.nc.Publish(SubjectDatasetRefreshed, payload); err != nil {
		p.logger.Printf("[events] publish refresh event: %v", err)
	}
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Printf("[events] drain nats: %v", err)
	}
}
