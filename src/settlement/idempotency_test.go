package settlement

import (
	"context"
	"log"
	"rms/src/db"
	"rms/src/types"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockdb, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: mockdb,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

func TestRunIdempotentEmptyKeyRunsDirectly(t *testing.T) {
	called := 0
	outcome, replayed, err := runIdempotent(context.Background(), "", "transition", func() (types.JSONB, error) {
		called++
		return types.JSONB{"ok": true}, nil
	})
	assert.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 1, called)
	assert.Equal(t, true, outcome["ok"])
}

func TestRunIdempotentReplaysStoredOutcome(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	mock.ExpectExec(`INSERT INTO "idempotency_keys"`).WillReturnError(gorm.ErrDuplicatedKey)
	rows := sqlmock.NewRows([]string{"key", "operation", "outcome", "status"}).
		AddRow("idem-1", "transition", []byte(`{"booking_id":1,"status":"confirmed"}`), "completed")
	mock.ExpectQuery(`SELECT \* FROM "idempotency_keys"`).WillReturnRows(rows)

	called := 0
	outcome, replayed, err := runIdempotent(context.Background(), "idem-1", "transition", func() (types.JSONB, error) {
		called++
		return types.JSONB{"booking_id": 1}, nil
	})
	assert.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, 0, called, "a replayed key must not re-apply effects")
	assert.Equal(t, "confirmed", outcome["status"])
}

func TestRunIdempotentConcurrentLoserDoesNotRerun(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	// The first request holds the key but has not finished yet. The second
	// request must not run the operation a second time.
	mock.ExpectExec(`INSERT INTO "idempotency_keys"`).WillReturnError(gorm.ErrDuplicatedKey)
	rows := sqlmock.NewRows([]string{"key", "operation", "outcome", "status"}).
		AddRow("idem-race", "transition", nil, "pending")
	mock.ExpectQuery(`SELECT \* FROM "idempotency_keys"`).WillReturnRows(rows)

	called := 0
	_, replayed, err := runIdempotent(context.Background(), "idem-race", "transition", func() (types.JSONB, error) {
		called++
		return types.JSONB{"booking_id": 1}, nil
	})
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.False(t, replayed)
	assert.Equal(t, 0, called, "the loser of a key race must not re-apply effects")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunIdempotentFailureReleasesKey(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	mock.ExpectExec(`INSERT INTO "idempotency_keys"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "idempotency_keys"`).WillReturnResult(sqlmock.NewResult(0, 1))

	_, replayed, err := runIdempotent(context.Background(), "idem-fail", "transition", func() (types.JSONB, error) {
		return nil, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, replayed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunIdempotentRejectsOperationMismatch(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	mock.ExpectExec(`INSERT INTO "idempotency_keys"`).WillReturnError(gorm.ErrDuplicatedKey)
	rows := sqlmock.NewRows([]string{"key", "operation", "outcome", "status"}).
		AddRow("idem-2", "transition", []byte(`{}`), "completed")
	mock.ExpectQuery(`SELECT \* FROM "idempotency_keys"`).WillReturnRows(rows)

	_, _, err := runIdempotent(context.Background(), "idem-2", "build_payout", func() (types.JSONB, error) {
		return nil, nil
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "was used for")
}
