package amqp

import (
	"errors"
	"time"

	"github.com/goccy/go-json"

	"sales/internal/core"
)

// SaleRecordedMessage is published once per recorded sale. It carries the full
// event so consumers never need to read period files.
type SaleRecordedMessage struct {
	EventID      string    `json:"event_id"`
	OperatorID   int64     `json:"operator_id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	SaleKey      string    `json:"sale_key"`
	DisplayName  string    `json:"display_name"`
	PriceKopecks int64     `json:"price_kopecks"`
	DayLabel     string    `json:"day_label"`
	MonthLabel   string    `json:"month_label"`
	RecordedAt   time.Time `json:"recorded_at"`
	Timestamp    time.Time `json:"timestamp"`
}

var errIncompleteMessage = errors.New("sale message missing event_id or sale_key")

func NewSaleRecordedMessage(ev core.SaleEvent) *SaleRecordedMessage {
	return &SaleRecordedMessage{
		EventID:      ev.ID,
		OperatorID:   int64(ev.Operator.ID),
		Username:     ev.Operator.Username,
		FullName:     ev.Operator.FullName,
		SaleKey:      ev.Key,
		DisplayName:  ev.DisplayName,
		PriceKopecks: ev.Price.Kopecks,
		DayLabel:     ev.DayLabel,
		MonthLabel:   ev.MonthLabel,
		RecordedAt:   ev.RecordedAt,
		Timestamp:    time.Now(),
	}
}

// Event converts the message back into the domain event.
func (m *SaleRecordedMessage) Event() core.SaleEvent {
	return core.SaleEvent{
		ID: m.EventID,
		Operator: core.Operator{
			ID:       core.OperatorID(m.OperatorID),
			Username: m.Username,
			FullName: m.FullName,
		},
		Key:         m.SaleKey,
		DisplayName: m.DisplayName,
		Price:       core.Money{Kopecks: m.PriceKopecks},
		DayLabel:    m.DayLabel,
		MonthLabel:  m.MonthLabel,
		RecordedAt:  m.RecordedAt,
	}
}

// ToJSON converts the message to JSON bytes
func (m *SaleRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SaleRecordedMessageFromJSON decodes and checks the fields consumers rely on.
func SaleRecordedMessageFromJSON(data []byte) (*SaleRecordedMessage, error) {
	var msg SaleRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.EventID == "" || msg.SaleKey == "" {
		return nil, errIncompleteMessage
	}
	return &msg, nil
}
