package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"mdxgrid/evaluator/pkg/audit"
)

func TestAsyncClickHouseLogger_LogQueryAndClose(t *testing.T) {
	logger := audit.NewAsyncLogger()

	logger.LogQuery(context.Background(), "alice", "SELECT [Measures].[Sales] ON 0 FROM [Sales]", 12*time.Millisecond, 4, nil)
	logger.LogQuery(context.Background(), "bob", "SELECT [Measures].[Cost] ON 0 FROM [Sales]", 5*time.Millisecond, 0, errors.New("access rules: denied"))
	logger.LogSchemaReload(context.Background())

	assert.NoError(t, logger.Close())
}
