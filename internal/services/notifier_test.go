package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lightlabcreation/big-pos-backend/internal/infrastructure/kafka"
	kafkamocks "github.com/lightlabcreation/big-pos-backend/internal/infrastructure/kafka/mocks"
	redismocks "github.com/lightlabcreation/big-pos-backend/internal/infrastructure/redis/mocks"
	"github.com/lightlabcreation/big-pos-backend/internal/ledger"
	"github.com/lightlabcreation/big-pos-backend/internal/models"
	service "github.com/lightlabcreation/big-pos-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func repaymentEntries() []ledger.Result {
	dashboard := models.Wallet{ID: "w-dash", OwnerID: consumerID, Kind: models.WalletDashboard, Balance: dec("900")}
	after := dashboard
	after.Balance = dec("899")
	credit := models.Wallet{ID: "w-credit", OwnerID: consumerID, Kind: models.WalletCredit, Balance: dec("100")}
	return []ledger.Result{
		{Wallet: dashboard, Transaction: models.Transaction{ID: "t-1", WalletID: "w-dash", Amount: dec("-100"), Type: models.TypeLoanRepayment}},
		{Wallet: credit, Transaction: models.Transaction{ID: "t-2", WalletID: "w-credit", Amount: dec("100"), Type: models.TypeLoanRepaymentReplenish}},
		{Wallet: after, Transaction: models.Transaction{ID: "t-3", WalletID: "w-dash", Amount: dec("-1"), Type: models.TypeDebit}},
	}
}

func TestLedgerNotifier_Notify(t *testing.T) {
	redisClient := new(redismocks.RedisClient)
	producer := new(kafkamocks.KafkaProducer)
	n := service.NewLedgerNotifier(redisClient, producer, time.Minute)

	// The dashboard appears twice; only its final balance is cached.
	redisClient.On("Set", mock.Anything, service.BalanceKey(consumerID, models.WalletDashboard), "899", time.Minute).Return(nil).Once()
	redisClient.On("Set", mock.Anything, service.BalanceKey(consumerID, models.WalletCredit), "100", time.Minute).Return(nil).Once()

	var sent []service.LedgerEvent
	producer.On("Send", mock.Anything, kafka.TopicLedgerTransactions, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			var e service.LedgerEvent
			require.NoError(t, json.Unmarshal(args.Get(3).([]byte), &e))
			assert.Equal(t, e.Transaction.WalletID, args.String(2))
			sent = append(sent, e)
		}).
		Return(nil)

	require.NoError(t, n.Notify(context.Background(), repaymentEntries()))

	redisClient.AssertExpectations(t)
	redisClient.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
	producer.AssertNumberOfCalls(t, "Send", 3)
	require.Len(t, sent, 3)
	assert.Equal(t, "t-1", sent[0].Transaction.ID)
	assert.Equal(t, "900", sent[0].Balance)
	assert.Equal(t, models.WalletCredit, sent[1].WalletKind)
}

func TestLedgerNotifier_CollectsFailures(t *testing.T) {
	redisClient := new(redismocks.RedisClient)
	producer := new(kafkamocks.KafkaProducer)
	n := service.NewLedgerNotifier(redisClient, producer, time.Minute)

	cacheErr := errors.New("redis down")
	brokerErr := errors.New("broker down")
	redisClient.On("Set", mock.Anything, mock.Anything, mock.Anything, time.Minute).Return(cacheErr)
	producer.On("Send", mock.Anything, kafka.TopicLedgerTransactions, "w-credit", mock.Anything).Return(brokerErr)
	producer.On("Send", mock.Anything, kafka.TopicLedgerTransactions, "w-dash", mock.Anything).Return(nil)

	err := n.Notify(context.Background(), repaymentEntries())
	require.Error(t, err)
	assert.ErrorIs(t, err, cacheErr)
	assert.ErrorIs(t, err, brokerErr)
	producer.AssertNumberOfCalls(t, "Send", 3)
}
