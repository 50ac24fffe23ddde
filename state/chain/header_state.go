package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/storage"
	"github.com/membercoin/membernode/storage/badger/operation"
)

// ErrUnknownParent is returned when a header extends a block that is not
// known.
var ErrUnknownParent = errors.New("unknown parent")

// HeaderState implements State on top of the header index. It follows the
// most-work chain, approximated as the highest known header, and advances the
// validated height as block data arrives in order along that chain.
type HeaderState struct {
	log       zerolog.Logger
	db        *badger.DB
	headers   storage.Headers
	chainID   ID
	mu        sync.Mutex // serializes Extend and MarkReceived
	best      *block.Header
	validated *atomic.Uint64
}

var _ State = (*HeaderState)(nil)

// Bootstrap initializes an empty database with the given genesis header and
// returns the state.
func Bootstrap(log zerolog.Logger, db *badger.DB, headers storage.Headers, chainID ID, genesis *block.Header) (*HeaderState, error) {
	if genesis.Height != 0 {
		return nil, fmt.Errorf("genesis must be at height 0, got %d", genesis.Height)
	}
	stored := *genesis
	stored.HaveData = true
	err := headers.Store(&stored)
	if err != nil {
		return nil, fmt.Errorf("could not store genesis: %w", err)
	}
	err = headers.IndexHeight(0, genesis.Hash)
	if err != nil {
		return nil, fmt.Errorf("could not index genesis: %w", err)
	}
	err = db.Update(operation.InsertValidatedHeight(0))
	if err != nil {
		return nil, fmt.Errorf("could not insert validated height: %w", err)
	}
	return OpenState(log, db, headers, chainID)
}

// OpenState opens a previously bootstrapped state.
func OpenState(log zerolog.Logger, db *badger.DB, headers storage.Headers, chainID ID) (*HeaderState, error) {
	var validated uint64
	err := db.View(operation.RetrieveValidatedHeight(&validated))
	if err != nil {
		return nil, fmt.Errorf("could not retrieve validated height: %w", err)
	}

	// the best header is the highest indexed one
	best, err := headers.ByHeight(validated)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve validated header: %w", err)
	}
	for {
		next, err := headers.ByHeight(best.Height + 1)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not retrieve header at %d: %w", best.Height+1, err)
		}
		best = next
	}

	s := &HeaderState{
		log:       log.With().Str("component", "chain_state").Str("chain", chainID.String()).Logger(),
		db:        db,
		headers:   headers,
		chainID:   chainID,
		best:      best,
		validated: atomic.NewUint64(validated),
	}
	return s, nil
}

func (s *HeaderState) ValidatedHeight() uint64 {
	return s.validated.Load()
}

func (s *HeaderState) Header(hash inv.Hash) (*block.Header, error) {
	return s.headers.ByHash(hash)
}

func (s *HeaderState) Ancestor(hash inv.Hash, height uint64) (*block.Header, error) {
	header, err := s.headers.ByHash(hash)
	if err != nil {
		return nil, err
	}
	if height > header.Height {
		return nil, fmt.Errorf("no ancestor at %d for block at %d: %w", height, header.Height, storage.ErrNotFound)
	}

	// blocks on the main chain resolve through the height index
	if main, err := s.headers.ByHeight(header.Height); err == nil && main.Hash == header.Hash {
		return s.headers.ByHeight(height)
	}

	for header.Height > height {
		header, err = s.headers.ByHash(header.Parent)
		if err != nil {
			return nil, fmt.Errorf("could not walk to parent: %w", err)
		}
	}
	return header, nil
}

func (s *HeaderState) HaveBlock(hash inv.Hash) bool {
	header, err := s.headers.ByHash(hash)
	if err != nil {
		return false
	}
	return header.HaveData
}

func (s *HeaderState) TargetSpacing() time.Duration {
	return s.chainID.TargetSpacing()
}

// Best returns the tip of the main chain.
func (s *HeaderState) Best() *block.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.best
	return &cp
}

// Extend adds a header whose parent is known. If it is higher than the
// current tip, the main chain switches to it. Known headers are ignored.
func (s *HeaderState) Extend(header *block.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.headers.ByHash(header.Hash)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("could not check header: %w", err)
	}

	parent, err := s.headers.ByHash(header.Parent)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("could not extend with %s: %w", header.Hash, ErrUnknownParent)
	}
	if err != nil {
		return fmt.Errorf("could not retrieve parent: %w", err)
	}
	if parent.Height+1 != header.Height {
		return fmt.Errorf("header %s at %d does not follow parent at %d", header.Hash, header.Height, parent.Height)
	}

	stored := *header
	stored.HaveData = false
	err = s.headers.Store(&stored)
	if err != nil {
		return fmt.Errorf("could not store header: %w", err)
	}

	if stored.Height <= s.best.Height {
		return nil
	}
	return s.switchTo(&stored)
}

// switchTo re-indexes the main chain to end at tip.
func (s *HeaderState) switchTo(tip *block.Header) error {
	cursor := tip
	for {
		main, err := s.headers.ByHeight(cursor.Height)
		if err == nil && main.Hash == cursor.Hash {
			break
		}
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("could not look up main chain: %w", err)
		}
		err = s.headers.IndexHeight(cursor.Height, cursor.Hash)
		if err != nil {
			return err
		}
		if cursor.Height == 0 {
			break
		}
		cursor, err = s.headers.ByHash(cursor.Parent)
		if err != nil {
			return fmt.Errorf("could not walk to parent: %w", err)
		}
	}

	s.best = tip
	forkHeight := cursor.Height
	if forkHeight < s.validated.Load() {
		s.log.Warn().
			Uint64("fork_height", forkHeight).
			Uint64("validated_height", s.validated.Load()).
			Msg("main chain switched below validated height")
		err := s.setValidated(forkHeight)
		if err != nil {
			return err
		}
	}
	return s.advance()
}

// MarkReceived records that the block data for hash is held and advances
// the validated height along the main chain.
func (s *HeaderState) MarkReceived(hash inv.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.headers.MarkHaveData(hash)
	if err != nil {
		return fmt.Errorf("could not mark block received: %w", err)
	}
	return s.advance()
}

func (s *HeaderState) advance() error {
	height := s.validated.Load()
	for height < s.best.Height {
		next, err := s.headers.ByHeight(height + 1)
		if err != nil {
			return fmt.Errorf("could not look up height %d: %w", height+1, err)
		}
		if !next.HaveData {
			break
		}
		height++
	}
	if height == s.validated.Load() {
		return nil
	}
	return s.setValidated(height)
}

func (s *HeaderState) setValidated(height uint64) error {
	err := operation.RetryOnConflict(s.db.Update, operation.UpdateValidatedHeight(height))
	if err != nil {
		return fmt.Errorf("could not update validated height: %w", err)
	}
	s.validated.Store(height)
	return nil
}
