// Package history backfills the seen-contract set for a freshly
// tracked wallet by paging the indexer's historical transfers. Fire and
// forget: failures are logged and the set simply grows lazily from live
// traffic instead.
package history

import (
	"context"
	"log"
	"time"

	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/store"
)

const (
	pageSize = 200
	maxPages = 25
)

// IndexerClient is the subset of the indexer API the scanner needs.
type IndexerClient interface {
	Transfers(ctx context.Context, mldsaHash string, limit, skip int) (*indexer.TransfersPage, error)
}

// Scanner seeds seen-contract sets from history.
type Scanner struct {
	idx IndexerClient
	st  *store.Store
}

func New(idx IndexerClient, st *store.Store) *Scanner {
	return &Scanner{idx: idx, st: st}
}

// Start launches the backfill for one identity in the background.
func (s *Scanner) Start(primary, mldsaHash string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.scan(ctx, primary, mldsaHash); err != nil {
			log.Printf("[history] backfill %s: %v", primary, err)
		}
	}()
}

func (s *Scanner) scan(ctx context.Context, primary, mldsaHash string) error {
	var contracts, nft []string
	seen := make(map[string]struct{})

	for page := 0; page < maxPages; page++ {
		resp, err := s.idx.Transfers(ctx, mldsaHash, pageSize, page*pageSize)
		if err != nil {
			return err
		}
		for i := range resp.Transfers {
			t := &resp.Transfers[i]
			if t.Contract == "" {
				continue
			}
			if _, dup := seen[t.Contract]; dup {
				continue
			}
			seen[t.Contract] = struct{}{}
			contracts = append(contracts, t.Contract)
			if t.Standard == "op721" {
				nft = append(nft, t.Contract)
			}
		}
		if len(resp.Transfers) < pageSize {
			break
		}
	}

	if err := s.st.AddSeenContracts(ctx, primary, contracts, nft); err != nil {
		return err
	}
	if len(contracts) > 0 {
		log.Printf("[history] %s: %d contracts seeded from history", primary, len(contracts))
	}
	return nil
}
