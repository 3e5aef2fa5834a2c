package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"ccns/internal/messaging"
	id "ccns/pkg/domain"
)

// headerMessageID duplicates the message id outside the value for tooling.
const headerMessageID = "ccns-message-id"

// Topic names the topic carrying messages to dest.
func Topic(prefix string, dest id.ChainSelector) string {
	return fmt.Sprintf("%s.%s", prefix, dest)
}

type wireRecord struct {
	ID          id.MessageID     `json:"id"`
	Source      id.ChainSelector `json:"source"`
	Destination id.ChainSelector `json:"destination"`
	Sender      id.Address       `json:"sender"`
	Receiver    id.Address       `json:"receiver"`
	Data        []byte           `json:"data"`
	GasLimit    uint64           `json:"gas_limit"`
	Fee         uint64           `json:"fee"`
	CreatedAt   time.Time        `json:"created_at"`
}

// encodeRecord turns rec into a Kafka record. Records are keyed by sender so
// messages of one registrar keep their order within a partition.
func encodeRecord(prefix string, rec Record) (*kgo.Record, error) {
	value, err := json.Marshal(wireRecord{
		ID:          rec.ID,
		Source:      rec.Source,
		Destination: rec.Destination,
		Sender:      rec.Message.Sender,
		Receiver:    rec.Message.Receiver,
		Data:        rec.Message.Data,
		GasLimit:    rec.Message.GasLimit,
		Fee:         rec.Fee,
		CreatedAt:   rec.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return &kgo.Record{
		Topic: Topic(prefix, rec.Destination),
		Key:   rec.Message.Sender.Bytes(),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: headerMessageID, Value: []byte(rec.ID.String())},
		},
	}, nil
}

func decodeRecord(r *kgo.Record) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(r.Value, &w); err != nil {
		return Record{}, fmt.Errorf("decode record at %s/%d@%d: %w", r.Topic, r.Partition, r.Offset, err)
	}
	if w.ID.IsNil() {
		return Record{}, fmt.Errorf("decode record at %s/%d@%d: missing message id", r.Topic, r.Partition, r.Offset)
	}
	return Record{
		ID:          w.ID,
		Source:      w.Source,
		Destination: w.Destination,
		Message: messaging.Message{
			Sender:   w.Sender,
			Receiver: w.Receiver,
			Data:     w.Data,
			GasLimit: w.GasLimit,
		},
		Fee:       w.Fee,
		CreatedAt: w.CreatedAt,
	}, nil
}
