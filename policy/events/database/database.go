package database

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"github.com/bidscreen/bidscreen-server/policy/events"
)

func bytesNull() []byte {
	return []byte{'n', 'u', 'l', 'l'}
}

type PolicyEventProducerConfig struct {
	DB                 *sql.DB
	CacheInitQuery     string
	CacheInitTimeout   time.Duration
	CacheUpdateQuery   string
	CacheUpdateTimeout time.Duration
}

type PolicyEventProducer struct {
	cfg           PolicyEventProducerConfig
	lastUpdate    time.Time
	updates       chan events.Update
	invalidations chan events.Invalidation
}

func NewPolicyEventProducer(cfg PolicyEventProducerConfig) (eventProducer *PolicyEventProducer) {
	if cfg.DB == nil {
		glog.Fatalf("The database policy loader needs a database connection to work.")
	}

	return &PolicyEventProducer{
		cfg:           cfg,
		lastUpdate:    time.Time{},
		updates:       make(chan events.Update, 1),
		invalidations: make(chan events.Invalidation, 1),
	}
}

// Run fetches the policies which changed since the last run, or all of them if
// this is the first run. It implements task.Runner so that a TickerTask can
// poll the database on a fixed schedule.
func (e *PolicyEventProducer) Run() error {
	if e.lastUpdate.IsZero() {
		return e.fetchAll()
	}

	return e.fetchDelta()
}

func (e *PolicyEventProducer) Updates() <-chan events.Update {
	return e.updates
}

func (e *PolicyEventProducer) Invalidations() <-chan events.Invalidation {
	return e.invalidations
}

func (e *PolicyEventProducer) fetchAll() (fetchErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CacheInitTimeout)
	defer cancel()

	startTime := time.Now().UTC()
	rows, err := e.cfg.DB.QueryContext(ctx, e.cfg.CacheInitQuery)
	if err != nil {
		glog.Warningf("Failed to fetch all policies from the DB: %v", err)
		return err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			glog.Warningf("Failed to close the policy DB connection: %v", err)
			fetchErr = err
		}
	}()
	if err := e.sendEvents(rows); err != nil {
		glog.Warningf("Failed to load all policies from the DB: %v", err)
		return err
	}

	e.lastUpdate = startTime
	return nil
}

func (e *PolicyEventProducer) fetchDelta() (fetchErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CacheUpdateTimeout)
	defer cancel()

	startTime := time.Now().UTC()
	rows, err := e.cfg.DB.QueryContext(ctx, e.cfg.CacheUpdateQuery, e.lastUpdate)
	if err != nil {
		glog.Warningf("Failed to fetch updated policies from the DB: %v", err)
		return err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			glog.Warningf("Failed to close the policy DB connection: %v", err)
			fetchErr = err
		}
	}()
	if err := e.sendEvents(rows); err != nil {
		glog.Warningf("Failed to load updated policies from the DB: %v", err)
		return err
	}

	e.lastUpdate = startTime
	return nil
}

// sendEvents reads the rows and sends notifications into the channels for any changes.
// If it returns an error, then callers can be certain that no events were sent to the channels.
func (e *PolicyEventProducer) sendEvents(rows *sql.Rows) (err error) {
	policyData := make(map[string]json.RawMessage)
	var invalidations []string

	for rows.Next() {
		var id string
		var data []byte
		var dataType string

		// discard corrupted data so it is not saved in the cache
		if err := rows.Scan(&id, &data, &dataType); err != nil {
			return err
		}

		switch dataType {
		case "policy":
			if len(data) == 0 || bytes.Equal(data, bytesNull()) {
				invalidations = append(invalidations, id)
			} else {
				policyData[id] = data
			}
		default:
			glog.Warningf("Policy query returned id=%s with unrecognized type: %s. Ignoring it.", id, dataType)
		}
	}

	// Beware that we need to test for an error when iterating over the rows
	if rows.Err() != nil {
		return rows.Err()
	}

	if len(policyData) > 0 {
		e.updates <- events.Update{
			Policies: policyData,
		}
	}

	// Deletions only make sense as a delta. The initial load should not
	// invalidate entries some other producer may have saved.
	if !e.lastUpdate.IsZero() && len(invalidations) > 0 {
		e.invalidations <- events.Invalidation{
			Policies: invalidations,
		}
	}

	return nil
}
