package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMsg struct {
	mock.Mock
}

func (m *mockMsg) Data() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *mockMsg) Subject() string {
	return messaging.OrdersPlacedSubject
}

func (m *mockMsg) Ack() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockMsg) Nak() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockMsg) Term() error {
	args := m.Called()
	return args.Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, event events.OrderPlacedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func orderPayload(t *testing.T, saleID int64) []byte {
	t.Helper()
	payload, err := events.OrderPlacedEvent{
		SaleID:         saleID,
		ClientID:       7,
		IdempotencyKey: "k-1",
		PaymentMethod:  "yape",
		Total:          decimal.RequireFromString("12.04"),
		Items:          2,
		PlacedAt:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}.Payload()
	require.NoError(t, err)
	return payload
}

func Test_Handle(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	testCases := []struct {
		name      string
		newMsg    func() *mockMsg
		sendErr   error
		wantsSend bool
	}{
		{
			name: "valid event is acked",
			newMsg: func() *mockMsg {
				msg := new(mockMsg)
				msg.On("Data").Return(orderPayload(t, 41)).Times(1)
				msg.On("Ack").Return(nil).Times(1)
				return msg
			},
			wantsSend: true,
		},
		{
			name: "send failure is redelivered",
			newMsg: func() *mockMsg {
				msg := new(mockMsg)
				msg.On("Data").Return(orderPayload(t, 41)).Times(1)
				msg.On("Nak").Return(nil).Times(1)
				return msg
			},
			sendErr:   errors.New("smtp down"),
			wantsSend: true,
		},
		{
			name: "malformed payload is terminated",
			newMsg: func() *mockMsg {
				msg := new(mockMsg)
				msg.On("Data").Return([]byte("invalid data")).Times(1)
				msg.On("Term").Return(nil).Times(1)
				return msg
			},
		},
		{
			name: "event without sale is terminated",
			newMsg: func() *mockMsg {
				msg := new(mockMsg)
				msg.On("Data").Return(orderPayload(t, 0)).Times(1)
				msg.On("Term").Return(nil).Times(1)
				return msg
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			msg := tc.newMsg()
			sender := new(mockSender)
			if tc.wantsSend {
				sender.On("Send", mock.Anything, mock.MatchedBy(func(e events.OrderPlacedEvent) bool {
					return e.SaleID == 41 && e.Total.Equal(decimal.RequireFromString("12.04"))
				})).Return(tc.sendErr).Times(1)
			}
			h := NewHandler(sender, logger)

			// when
			h.Handle(context.Background(), msg)

			// then
			msg.AssertExpectations(t)
			sender.AssertExpectations(t)
		})
	}
}

func Test_Handle_NilMessage(t *testing.T) {
	sender := new(mockSender)
	h := NewHandler(sender, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NotPanics(t, func() { h.Handle(context.Background(), nil) })
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func Test_Decode_KeepsCarrier(t *testing.T) {
	var raw map[string]any
	require.NoError(t, json.Unmarshal(orderPayload(t, 5), &raw))
	raw["carrier"] = map[string]string{"traceparent": "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"}
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	event, err := decode(data)

	require.NoError(t, err)
	assert.Equal(t, int64(5), event.SaleID)
	assert.Contains(t, event.Carrier, "traceparent")
}
