package clickhouse

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/fee-oracle/pkg/compress"
	"github.com/StrathCole/fee-oracle/pkg/fees"
	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/storage"
)

func newMockStore(t *testing.T, codec *compress.Codec) (*RecordStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRecordStore(NewFromDB(db), codec, logging.NewNoopLogger()), mock
}

func sampleRecord(ts time.Time) *fees.AggregatedRecord {
	return &fees.AggregatedRecord{
		ID:         "0b7c",
		Symbol:     "FEE/USD",
		Field:      fees.FieldMaker,
		Consensus:  0.0012,
		Confidence: 0.75,
		Timestamp:  ts,
		Sources:    []string{"binance", "kraken"},
	}
}

func TestRecordStore_Put(t *testing.T) {
	codec, err := compress.NewCodec(compress.S2, 0)
	require.NoError(t, err)
	store, mock := newMockStore(t, codec)
	rec := sampleRecord(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO aggregated_records")).
		WithArgs("0b7c", "FEE/USD", "maker", sqlmock.AnyArg(), 0.75, 0.0012, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_PutFailure(t *testing.T) {
	store, mock := newMockStore(t, nil)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO aggregated_records")).
		WillReturnError(errors.New("connection reset"))

	err := store.Put(context.Background(), sampleRecord(time.Now()))
	assert.ErrorIs(t, err, fees.ErrStorageFailure)
}

func TestRecordStore_GetLatest(t *testing.T) {
	codec, err := compress.NewCodec(compress.Gzip, 0)
	require.NoError(t, err)
	store, mock := newMockStore(t, codec)
	rec := sampleRecord(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	payload, err := storage.EncodeRecord(codec, rec)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM aggregated_records WHERE symbol = ? ORDER BY ts DESC")).
		WithArgs("FEE/USD").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(string(payload)))

	got, err := store.GetLatest(context.Background(), "FEE/USD")
	require.NoError(t, err)
	assert.Equal(t, rec.Sources, got.Sources)
	assert.Equal(t, rec.Consensus, got.Consensus)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM aggregated_records")).
		WithArgs("BTC/USD").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err = store.GetLatest(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, fees.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordStore_GetRange(t *testing.T) {
	store, mock := newMockStore(t, nil)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	first, err := storage.EncodeRecord(nil, sampleRecord(base))
	require.NoError(t, err)
	second, err := storage.EncodeRecord(nil, sampleRecord(base.Add(time.Minute)))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM aggregated_records WHERE symbol = ? AND ts >= ?")).
		WithArgs("FEE/USD", base, base.Add(time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow(string(first)).
			AddRow("garbage").
			AddRow(string(second)))

	recs, err := store.GetRange(context.Background(), "FEE/USD", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[1].Timestamp.Equal(base.Add(time.Minute)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS aggregated_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewFromDB(db).InitSchema(context.Background(), Schema))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(Config{
		Host:         "ch",
		Port:         9000,
		Database:     "oracle",
		User:         "u",
		Password:     "p",
		DialTimeout:  time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	assert.Equal(t, "clickhouse://u:p@ch:9000/oracle?dial_timeout=1s&async_insert=1&wait_for_async_insert=1", dsn)
}

func TestRecordStore_Health(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	store := NewRecordStore(NewFromDB(db), nil, logging.NewNoopLogger())

	mock.ExpectPing()
	require.NoError(t, store.Health(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, store.Health(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
