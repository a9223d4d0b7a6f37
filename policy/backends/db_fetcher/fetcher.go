package db_fetcher

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/bidscreen/bidscreen-server/policy"
	"github.com/golang/glog"
)

func NewFetcher(db *sql.DB, queryMaker func(int) string) policy.Fetcher {
	if db == nil {
		glog.Fatalf("The Postgres policy fetcher requires a database connection. Please report this as a bug.")
	}
	if queryMaker == nil {
		glog.Fatalf("The Postgres policy fetcher requires a queryMaker function. Please report this as a bug.")
	}
	return &dbFetcher{
		db:         db,
		queryMaker: queryMaker,
	}
}

// dbFetcher fetches policies from a database. This should be instantiated through the NewFetcher() function.
type dbFetcher struct {
	db         *sql.DB
	queryMaker func(numAccounts int) (query string)
}

func (fetcher *dbFetcher) FetchPolicies(ctx context.Context, accountIDs []string) (map[string]json.RawMessage, []error) {
	if len(accountIDs) < 1 {
		return nil, nil
	}

	query := fetcher.queryMaker(len(accountIDs))
	idInterfaces := make([]interface{}, len(accountIDs))
	for i := 0; i < len(accountIDs); i++ {
		idInterfaces[i] = accountIDs[i]
	}

	rows, err := fetcher.db.QueryContext(ctx, query, idInterfaces...)
	if err != nil {
		if err != context.DeadlineExceeded && !isBadInput(err) {
			glog.Errorf("Error reading from policy DB: %s", err.Error())
			return nil, appendErrors(accountIDs, nil, nil)
		}
		return nil, []error{err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			glog.Errorf("error closing DB connection: %v", err)
		}
	}()

	policyData := make(map[string]json.RawMessage, len(accountIDs))
	for rows.Next() {
		var id string
		var data []byte
		var dataType string

		if err := rows.Scan(&id, &data, &dataType); err != nil {
			return nil, []error{err}
		}

		switch dataType {
		case "policy":
			policyData[id] = data
		default:
			glog.Errorf("Postgres result set with id=%s has invalid type: %s. This will be ignored.", id, dataType)
		}
	}

	if rows.Err() != nil {
		return nil, []error{rows.Err()}
	}

	return policyData, appendErrors(accountIDs, policyData, nil)
}

func appendErrors(ids []string, data map[string]json.RawMessage, errs []error) []error {
	for _, id := range ids {
		if _, ok := data[id]; !ok {
			errs = append(errs, policy.NotFoundError{
				ID: id,
			})
		}
	}
	return errs
}

// Returns true if the Postgres error signifies some sort of bad user input, and false otherwise.
//
// These errors are documented here: https://www.postgresql.org/docs/9.3/static/errcodes-appendix.html
func isBadInput(err error) bool {
	// Postgres queries fail outright if a non-UUID is passed into a query for a UUID column.
	// Since users can send arbitrary account IDs, and we don't want the code to assume anything
	// about the database schema, these shouldn't be logged as server errors.
	if pqErr, ok := err.(*pq.Error); ok && string(pqErr.Code) == "22P02" {
		return true
	}

	return false
}
