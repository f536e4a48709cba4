package settlement

import (
	"context"
	"rms/src/db"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestOpenDisputeAlreadyOpen(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	rows := sqlmock.NewRows([]string{"id", "status", "total_amount", "currency", "created_at"}).
		AddRow(1, "disputed", "1000.00", "AED", time.Now().UTC())
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).WillReturnRows(rows)

	_, err := OpenDispute(context.Background(), 1, "damage reported", "guest", "")
	assert.ErrorIs(t, err, ErrDisputeAlreadyOpen)
}

func TestResolveDisputeRequiresDisputedBooking(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"id", "status", "total_amount", "currency", "created_at"}).
		AddRow(1, "confirmed", "1000.00", "AED", time.Now().UTC())
	mock.ExpectQuery(`SELECT \* FROM "bookings"`).WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := ResolveDispute(context.Background(), 1, "release_to_host", nil, ActorResolver, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
