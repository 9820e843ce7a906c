package sqldb

import (
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// MySQL error numbers
const (
	mysqlDuplicateEntry  = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// PostgreSQL SQLSTATE
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

var passthrough = []error{
	domain.ErrAccountNotFound,
	domain.ErrAccountAlreadyExists,
	domain.ErrInsufficientFunds,
	domain.ErrDuplicateExternalRef,
	domain.ErrConflict,
	domain.ErrStorageUnavailable,
	domain.ErrInvalidAmount,
	domain.ErrInvalidExternalRef,
	domain.ErrUnbalancedUnit,
}

// classify 將 driver 錯誤轉成 domain 錯誤，原始錯誤不會往上傳
// onDuplicate: 唯一索引衝突時要回傳的錯誤
func classify(err error, onDuplicate error) error {
	if err == nil {
		return nil
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return onDuplicate
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return onDuplicate
		case mysqlDeadlock, mysqlLockWaitTimeout:
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return onDuplicate
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}

	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}
