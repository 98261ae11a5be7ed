package notifier

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	pnats "github.com/abgdnv/storefront/pkg/nats"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/nats"
	"golang.org/x/sync/errgroup"
)

// skipIntegrationTests is the environment variable that controls whether to skip integration tests.
const skipIntegrationTests = "STOREFRONT_SKIP_INTEGRATION_TESTS"
const natsImg = "nats:2.11.6-alpine"

type recordingSender struct {
	mu   sync.Mutex
	sent []int64
}

func (r *recordingSender) Send(_ context.Context, event events.OrderPlacedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, event.SaleID)
	return nil
}

func (r *recordingSender) Sent() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.sent...)
}

// SubscriberSuite runs the notifier against a real JetStream server.
type SubscriberSuite struct {
	suite.Suite
	ctx           context.Context
	logger        *slog.Logger
	natsContainer *nats.NATSContainer
	nc            *natsgo.Conn
	js            jetstream.JetStream
}

func (s *SubscriberSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var err error
	s.natsContainer, err = nats.Run(s.ctx, natsImg)
	require.NoError(s.T(), err, "Failed to run NATS container")

	natsURL, err := s.natsContainer.ConnectionString(s.ctx)
	require.NoError(s.T(), err)

	s.nc, err = pnats.NewClient(natsURL, 5*time.Second)
	require.NoError(s.T(), err, "Failed to connect to NATS")

	s.js, err = pnats.NewJetStreamContext(s.nc)
	require.NoError(s.T(), err, "Failed to get JetStream context")
}

func (s *SubscriberSuite) TearDownSuite() {
	s.nc.Close()
	if err := testcontainers.TerminateContainer(s.natsContainer); err != nil {
		s.logger.Error("Failed to terminate NATS container", "error", err)
	}
}

func TestSubscriberIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(SubscriberSuite))
}

func (s *SubscriberSuite) TestConsumesPublishedOrders() {
	// given
	stream := "STREAM_" + uuid.NewString()
	subject := "orders." + uuid.NewString()
	consumer := "CONSUMER_" + uuid.NewString()
	require.NoError(s.T(), pnats.EnsureStream(s.ctx, s.js, stream, subject))

	sender := &recordingSender{}
	cfg := config.SubscriberConfig{
		Stream:   stream,
		Subject:  subject,
		Consumer: consumer,
		Batch:    5,
		Timeout:  200 * time.Millisecond,
		Interval: 200 * time.Millisecond,
		Workers:  2,
	}
	testCtx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	g, gCtx := errgroup.WithContext(testCtx)
	s.T().Cleanup(func() {
		cancel()
		require.ErrorIs(s.T(), g.Wait(), context.Canceled)
	})
	g.Go(func() error {
		return Start(gCtx, s.js, cfg, NewHandler(sender, s.logger))
	})

	// when
	_, err := s.js.Publish(s.ctx, subject, []byte("not json"))
	require.NoError(s.T(), err)
	for _, saleID := range []int64{11, 12} {
		payload, err := events.OrderPlacedEvent{
			SaleID:         saleID,
			ClientID:       3,
			IdempotencyKey: uuid.NewString(),
			PaymentMethod:  "tarjeta",
			Total:          decimal.RequireFromString("59.00"),
			Items:          1,
			PlacedAt:       time.Now().UTC(),
		}.Payload()
		require.NoError(s.T(), err)
		_, err = s.js.Publish(s.ctx, subject, payload)
		require.NoError(s.T(), err)
	}

	// then
	require.Eventually(s.T(), func() bool {
		c, err := s.js.Consumer(s.ctx, stream, consumer)
		if err != nil {
			return false
		}
		info, err := c.Info(s.ctx)
		if err != nil {
			return false
		}
		return info.NumPending == 0 && info.NumAckPending == 0 && info.AckFloor.Stream == 3
	}, 8*time.Second, 100*time.Millisecond, "orders were not consumed")
	require.ElementsMatch(s.T(), []int64{11, 12}, sender.Sent())
}
