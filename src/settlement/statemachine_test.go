package settlement

import (
	"rms/src/db"
	"rms/src/models"
	"rms/src/types"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    types.BookingStatus
		to      types.BookingStatus
		allowed bool
	}{
		{types.BOOKING_PENDING, types.BOOKING_CONFIRMED, true},
		{types.BOOKING_PENDING, types.BOOKING_CANCELED, true},
		{types.BOOKING_PENDING, types.BOOKING_COMPLETED, false},
		{types.BOOKING_PENDING, types.BOOKING_DISPUTED, false},
		{types.BOOKING_CONFIRMED, types.BOOKING_COMPLETED, true},
		{types.BOOKING_CONFIRMED, types.BOOKING_CANCELED, true},
		{types.BOOKING_CONFIRMED, types.BOOKING_DISPUTED, true},
		{types.BOOKING_CONFIRMED, types.BOOKING_PENDING, false},
		{types.BOOKING_COMPLETED, types.BOOKING_CANCELED, false},
		{types.BOOKING_COMPLETED, types.BOOKING_DISPUTED, false},
		{types.BOOKING_CANCELED, types.BOOKING_CONFIRMED, false},
		{types.BOOKING_CANCELED, types.BOOKING_COMPLETED, false},
		{types.BOOKING_DISPUTED, types.BOOKING_CANCELED, true},
		{types.BOOKING_DISPUTED, types.BOOKING_COMPLETED, true},
		{types.BOOKING_DISPUTED, types.BOOKING_CONFIRMED, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.allowed, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []types.BookingStatus{
		types.BOOKING_PENDING,
		types.BOOKING_CONFIRMED,
		types.BOOKING_CANCELED,
		types.BOOKING_COMPLETED,
		types.BOOKING_DISPUTED,
	}
	for _, to := range all {
		assert.False(t, CanTransition(types.BOOKING_CANCELED, to))
		assert.False(t, CanTransition(types.BOOKING_COMPLETED, to))
	}
}

// Cancelling a paid booking must leave the completed entries summing to zero:
// the refund draws down the unsettled host credit and reverses the platform
// fee and commission instead of stranding them.
func TestCancelConfirmedBookingBalancesLedger(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	booking := models.Booking{
		ID:          1,
		Status:      types.BOOKING_CONFIRMED,
		TotalAmount: decimal.RequireFromString("1000"),
		Currency:    "AED",
		HostID:      7,
		Policy:      types.POLICY_FLEXIBLE,
		CheckIn:     time.Now().UTC().Add(48 * time.Hour),
	}

	mock.ExpectBegin()
	// only entries that never reached the gateway are voided
	mock.ExpectExec(`UPDATE "transactions" SET .+ WHERE booking_id = .+ AND payout_id IS NULL AND gateway_ref IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT SUM\(amount\)::text FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("1000.0000"))
	mock.ExpectQuery(`SELECT SUM\(ABS\(amount\)\)::text FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))
	// the unsettled host credit is drawn down first
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "host_id", "type", "status", "amount", "currency"}).
			AddRow(uuid.NewString(), 1, 7, string(types.TXN_HOST_PAYOUT), string(types.TRANSACTION_PENDING), "-850.0000", "AED"))
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	// then the platform fee and the commission get offsetting reversals
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "type", "status", "amount", "currency"}).
			AddRow(uuid.NewString(), 1, string(types.TXN_PLATFORM_FEE), string(types.TRANSACTION_COMPLETED), "-100.0000", "AED"))
	mock.ExpectQuery(`INSERT INTO "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	mock.ExpectQuery(`SELECT \* FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "type", "status", "amount", "currency"}).
			AddRow(uuid.NewString(), 1, string(types.TXN_COMMISSION), string(types.TRANSACTION_COMPLETED), "-50.0000", "AED"))
	mock.ExpectQuery(`INSERT INTO "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	// the refund entry itself
	mock.ExpectQuery(`INSERT INTO "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	// nothing left of the host credit to settle
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var entry *models.Transaction
	err := d.Transaction(func(tx *gorm.DB) error {
		var terr error
		entry, terr = cancelBooking(tx, &booking, "guest cancelled", "guest")
		return terr
	})
	assert.NoError(t, err)
	if assert.NotNil(t, entry) {
		assert.Equal(t, types.TXN_REFUND, entry.Type)
		assert.True(t, entry.Amount.Equal(decimal.RequireFromString("-1000")), "got %s", entry.Amount)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A cancellation with no refund due settles the full host credit so the
// ledger still closes at zero.
func TestCancelStrictInsideWindowSettlesHostCredit(t *testing.T) {
	d, mock := newMockDB(t)
	db.NewDB(d)

	booking := models.Booking{
		ID:          2,
		Status:      types.BOOKING_CONFIRMED,
		TotalAmount: decimal.RequireFromString("1000"),
		Currency:    "AED",
		HostID:      7,
		Policy:      types.POLICY_STRICT,
		CheckIn:     time.Now().UTC().Add(2 * time.Hour),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT SUM\(amount\)::text FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("1000.0000"))
	mock.ExpectQuery(`SELECT SUM\(ABS\(amount\)\)::text FROM "transactions"`).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))
	// no refund entry; the host credit settles instead
	mock.ExpectExec(`UPDATE "transactions"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var entry *models.Transaction
	err := d.Transaction(func(tx *gorm.DB) error {
		var terr error
		entry, terr = cancelBooking(tx, &booking, "late cancellation", "guest")
		return terr
	})
	assert.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}
