package logging

import (
	"github.com/sirupsen/logrus"

	"reldb/pkg/primitives"
)

// WithTx creates a logger entry with transaction context.
func WithTx(txnID primitives.TxnID) *logrus.Entry {
	return GetLogger().WithField("txn_id", txnID)
}

// WithTable creates a logger entry with table context.
func WithTable(table string) *logrus.Entry {
	return GetLogger().WithField("table", table)
}

// WithIndex creates a logger entry with index context.
func WithIndex(index string) *logrus.Entry {
	return GetLogger().WithField("index", index)
}

// WithPage creates a logger entry with page context.
func WithPage(file primitives.FileID, pageNo primitives.PageNumber) *logrus.Entry {
	return GetLogger().WithFields(logrus.Fields{
		"file": file,
		"page": pageNo,
	})
}
