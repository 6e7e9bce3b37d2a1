package subscriber

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omni/gmp-mock-api/chainclient"
	"github.com/omni/gmp-mock-api/logging"
)

const (
	PageSize = 100
	// TimestampTolerance absorbs the precision difference between local and block timestamps.
	TimestampTolerance = 2 * time.Second
)

var (
	ErrTooOld        = errors.New("reached transactions older than the broadcast")
	ErrEventNotFound = errors.New("event is not found")
)

// EventQuery describes the event a follow-up item is waiting for.
type EventQuery struct {
	ContractAddress string
	EventType       string
	Attribute       string
	Value           string
	// CreatedAt is the time of the broadcast that triggered the event, older txs are ignored.
	CreatedAt time.Time
}

type Match struct {
	Event     chainclient.StringEvent
	Timestamp time.Time
	Height    uint64
}

func TotalPages(totalCount uint64) int {
	return int((totalCount + PageSize - 1) / PageSize)
}

// FindEvent walks the tx history of the contract from the newest page to the oldest one and
// returns the first event matching the query. ErrTooOld is returned once a whole page predates
// the broadcast, ErrEventNotFound when the history is exhausted.
func FindEvent(ctx context.Context, logger logging.Logger, client chainclient.Client, q EventQuery) (*Match, error) {
	logger = logger.WithFields(logrus.Fields{
		"contract_address": q.ContractAddress,
		"event_type":       q.EventType,
		q.Attribute:        q.Value,
	})

	probe, err := client.QueryEvents(ctx, q.ContractAddress, q.EventType, 1, 1)
	if err != nil {
		return nil, fmt.Errorf("can't get total tx count: %w", err)
	}
	totalPages := TotalPages(uint64(probe.TotalCount))
	logger.WithField("total_pages", totalPages).Debug("searching tx history")

	for page := totalPages; page >= 1; page-- {
		res, err := client.QueryEvents(ctx, q.ContractAddress, q.EventType, page, PageSize)
		if err != nil {
			return nil, fmt.Errorf("can't get page %d: %w", page, err)
		}
		PagesScanned.WithLabelValues(q.EventType).Inc()

		match, recent := scanPage(res.Txs, q)
		if match != nil {
			logger.WithFields(logrus.Fields{
				"page":   page,
				"height": match.Height,
			}).Info("found matching event")
			return match, nil
		}
		if !recent {
			logger.WithField("page", page).Warn("reached txs older than the broadcast, stopping search")
			return nil, fmt.Errorf("page %d of %d: %w", page, totalPages, ErrTooOld)
		}
		logger.WithField("page", page).Debug("no matching event on page")
	}
	return nil, fmt.Errorf("%s with %s=%s: %w", q.EventType, q.Attribute, q.Value, ErrEventNotFound)
}

// scanPage returns the first matching event of the page and whether the page holds any tx
// not older than the broadcast. Txs without a timestamp are scanned but do not count as recent.
func scanPage(txs []chainclient.TxResponse, q EventQuery) (*Match, bool) {
	recent := false
	for i := range txs {
		tx := &txs[i]
		ts, hasTimestamp := tx.Time()
		if hasTimestamp {
			if ts.Add(TimestampTolerance).Before(q.CreatedAt) {
				continue
			}
			recent = true
		} else {
			ts = q.CreatedAt
		}

		for _, event := range tx.AllEvents() {
			if event.Type != q.EventType {
				continue
			}
			if value, ok := event.Attribute(q.Attribute); ok && value == q.Value {
				return &Match{
					Event:     event,
					Timestamp: ts,
					Height:    tx.BlockHeight(),
				}, true
			}
		}
	}
	return nil, recent
}
