package transactions

import (
	"encoding/json"
	"fmt"
)

const (
	ErrBeginFailed    = "begin_failed"
	ErrCommitFailed   = "commit_failed"
	ErrRollbackFailed = "rollback_failed"
	ErrExecuteFailed  = "execute_failed"
	ErrOutOfOrder     = "out_of_order_nesting"
	ErrAlreadyClosed  = "already_closed"
)

type TransactionError struct {
	code string
	msg  string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("Transaction error:  code='%s'  msg = '%s'", e.code, e.msg)
}

func (e *TransactionError) Code() string {
	return e.code
}

func (e *TransactionError) Json() []byte {
	j, _ := json.Marshal(map[string]string{
		"code": "tx:" + e.code,
		"msg":  e.msg,
	})
	return j
}

func NewTransactionError(code string, msg string, a ...interface{}) *TransactionError {
	return &TransactionError{code: code, msg: fmt.Sprintf(msg, a...)}
}
