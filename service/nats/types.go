package nats

import (
	"time"

	"github.com/solspray/solspray/service/distribute"
)

// ProgressMessage is the wire envelope for a distribution progress event
// published to the subject "distributions.{run_id}" in JetStream.
type ProgressMessage struct {
	distribute.ProgressEvent

	// PublishedAt is stamped by the publisher.
	PublishedAt time.Time `json:"published_at"`
}
