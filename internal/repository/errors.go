// Package repository implements MySQL persistence for events, bookings,
// users and refresh tokens on top of database/sql.  Driver errors are
// translated into the sentinels of package storage so that higher layers
// such as services and handlers can distinguish failure scenarios.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers inspected by the repositories.
const (
	errDupEntry        = 1062
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

// isDuplicateKey reports whether err is a unique-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// isRetryable reports whether a transaction failed because of lock
// contention and may succeed when run again.
func isRetryable(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	return me.Number == errDeadlock || me.Number == errLockWaitTimeout
}
