package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
)

// ErrDeadLetterEmpty: в DLQ-записи нет исходного события, переигрывать нечего.
var ErrDeadLetterEmpty = errors.New("dead letter does not carry the original event payload")

// DeadLetter: тело DLQ-сообщения: исходное событие леджера и причина, по которой оно не доставлено.
// cmd/dlq-reprocess читает его через DecodeDeadLetter.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt time.Time       `json:"dlq_published_at,omitzero"`
}

func NewDeadLetter(event domain.OutboxMessage, cause error, at time.Time) DeadLetter {
	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	letter := DeadLetter{
		OutboxID:       event.ID,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		EventType:      event.EventType,
		Payload:        payload,
		DLQPublishedAt: at.UTC(),
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// Message упаковывает запись в сообщение outbox с идентичностью исходного события,
// чтобы DLQ-publisher выставил те же ключ и заголовки.
func (d DeadLetter) Message(original domain.OutboxMessage) (domain.OutboxMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("encode dead letter %s: %w", d.OutboxID, err)
	}
	msg := original
	msg.Payload = body
	return msg, nil
}

// DecodeDeadLetter разбирает тело DLQ-записи.
func DecodeDeadLetter(body []byte) (DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(body, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return DeadLetter{}, ErrDeadLetterEmpty
	}
	return letter, nil
}
