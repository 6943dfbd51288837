package badger

import (
	"encoding/json"
	"fmt"
	"time"
)

// bucketData is the stored form of a bucket.
type bucketData struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// objectData is the stored form of an object. Body is base64 in JSON.
type objectData struct {
	Body     []byte            `json:"body"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func encodeObject(o objectData) ([]byte, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode object: %w", err)
	}
	return data, nil
}

func decodeObject(data []byte) (objectData, error) {
	var o objectData
	if err := json.Unmarshal(data, &o); err != nil {
		return o, fmt.Errorf("failed to decode object: %w", err)
	}
	return o, nil
}

func encodeBucket(b bucketData) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bucket: %w", err)
	}
	return data, nil
}
