package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// BudgetChangedMessage announces that something in a budget was written.
// It carries only ids; consumers reload the budget from the database.
type BudgetChangedMessage struct {
	BudgetID  int64     `json:"budget_id"`
	UserID    int64     `json:"user_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBudgetChangedMessage(budgetID, userID int64, kind string) *BudgetChangedMessage {
	return &BudgetChangedMessage{
		BudgetID:  budgetID,
		UserID:    userID,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

func (m *BudgetChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetChangedMessageFromJSON decodes and sanity-checks a message body.
func BudgetChangedMessageFromJSON(data []byte) (*BudgetChangedMessage, error) {
	var msg BudgetChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.BudgetID <= 0 {
		return nil, errors.New("message has no budget id")
	}
	return &msg, nil
}
