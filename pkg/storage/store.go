// Package storage persists market state in an embedded Pebble key-value
// store, one namespaced key prefix per market so a market's whole
// subtree can be scanned or dropped in isolation.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/predimarket/engine/pkg/app/core/market"
	"github.com/predimarket/engine/pkg/app/core/orderbook"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveMarket persists a market's metadata/resolution snapshot and every
// outcome orderbook under their namespaced keys.
func (s *Store) SaveMarket(m *market.Market) error {
	meta, err := json.Marshal(m.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal market meta: %w", err)
	}
	if err := s.db.Set(marketMetaKey(m.ID), meta, pebble.Sync); err != nil {
		return fmt.Errorf("save market meta: %w", err)
	}

	for outcome := uint64(0); outcome < m.NumOutcomes; outcome++ {
		book := m.Orderbook(outcome)
		if book == nil {
			continue
		}
		data, err := json.Marshal(book.Snapshot())
		if err != nil {
			return fmt.Errorf("marshal orderbook %d: %w", outcome, err)
		}
		if err := s.db.Set(marketOrderbookKey(m.ID, outcome), data, pebble.Sync); err != nil {
			return fmt.Errorf("save orderbook %d: %w", outcome, err)
		}
	}
	return nil
}

// LoadMarket rebuilds a market and all of its orderbooks from persisted
// state. Returns (nil, nil) if no market with that id has been saved.
func (s *Store) LoadMarket(marketID uint64) (*market.Market, error) {
	metaBytes, closer, err := s.db.Get(marketMetaKey(marketID))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load market meta: %w", err)
	}
	var snap market.Snapshot
	unmarshalErr := json.Unmarshal(metaBytes, &snap)
	closer.Close()
	if unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal market meta: %w", unmarshalErr)
	}

	m := market.FromSnapshot(snap)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: marketOrderbookPrefix(marketID),
		UpperBound: upperBound(marketOrderbookPrefix(marketID)),
	})
	if err != nil {
		return nil, fmt.Errorf("scan orderbooks: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var obSnap orderbook.Snapshot
		if err := json.Unmarshal(iter.Value(), &obSnap); err != nil {
			continue
		}
		m.AttachOrderbook(obSnap.OutcomeID, orderbook.FromSnapshot(obSnap))
	}

	return m, nil
}

// ListMarketIDs scans every "market:{id}:meta" key and returns the ids
// found, used to rehydrate the registry on startup.
func (s *Store) ListMarketIDs() ([]uint64, error) {
	prefix := marketPrefixAll()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []uint64
	for iter.First(); iter.Valid(); iter.Next() {
		var id uint64
		var suffix string
		if _, err := fmt.Sscanf(string(iter.Key()), "market:%d:%s", &id, &suffix); err == nil && suffix == "meta" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
