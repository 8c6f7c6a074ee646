package utils

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrorRecordNotFound = errors.New("record not found")

	// Uniqueness conflicts.
	ErrorDuplicateExternalId = errors.New("external id already exists")

	// Business-rule violations.
	ErrorInvalidTransition = errors.New("order status does not allow this action")
	ErrorCannotCancel      = errors.New("order can no longer be canceled")
	ErrorCantBuildSet      = errors.New("not enough resource stock to build set")
	ErrorNegativeStock     = errors.New("operation would drive stock negative")
)

// InsufficientStockError identifies the first resource that blocked an order
// activation or a build.
type InsufficientStockError struct {
	ResourceId   int
	ResourceName string
	Available    string
	Needed       string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for resource %q (id=%d): available %s, needed %s",
		e.ResourceName, e.ResourceId, e.Available, e.Needed)
}

// OperationFailedError wraps unexpected storage errors at the store boundary
// so callers can distinguish them from business-rule violations.
type OperationFailedError struct {
	Op  string
	Err error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OperationFailedError) Unwrap() error { return e.Err }

func OperationFailed(op string, err error) error {
	return &OperationFailedError{Op: op, Err: err}
}

const mysqlDuplicateEntry = 1062

// IsDuplicateKeyError reports whether err is a MySQL unique-constraint
// violation (error 1062).
func IsDuplicateKeyError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	return false
}
