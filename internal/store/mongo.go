package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"clawarena/internal/arena"
)

const leaderboardCASAttempts = 8

func timeFromNs(ns int64) time.Time { return time.Unix(0, ns).UTC() }

// arenaDoc is the MongoDB row for one arena. The aggregate itself travels
// as a JSON string so the document shape stays identical to the snapshot
// format; the extracted fields exist only for queries.
type arenaDoc struct {
	ID          string `bson:"_id"` // hex address
	Version     uint64 `bson:"version"`
	Doc         string `bson:"doc"`
	GameStatus  string `bson:"gameStatus"`
	IsClosed    bool   `bson:"isClosed"`
	IsFinalized bool   `bson:"isFinalized"`
	CreatedAtNs int64  `bson:"createdAtNs"`
}

type boardDoc struct {
	ID           string `bson:"_id"` // hex player address
	Version      uint64 `bson:"version"`
	Wins         uint64 `bson:"wins"`
	Played       uint64 `bson:"played"`
	TotalPayouts string `bson:"totalPayouts"` // decimal
	UpdatedAtNs  int64  `bson:"updatedAtNs"`
}

// Mongo is the production arena.Store.
type Mongo struct {
	clk     clock.Clock
	arenas  *mongo.Collection
	payouts *mongo.Collection
	refunds *mongo.Collection
	board   *mongo.Collection
}

func NewMongo(db *mongo.Database, clk clock.Clock) *Mongo {
	return &Mongo{
		clk:     clk,
		arenas:  db.Collection("arenas"),
		payouts: db.Collection("payouts"),
		refunds: db.Collection("refund_intents"),
		board:   db.Collection("leaderboard"),
	}
}

func newArenaDoc(a *arena.Arena, version uint64) (*arenaDoc, error) {
	raw, err := encodeArena(a)
	if err != nil {
		return nil, err
	}
	return &arenaDoc{
		ID:          a.Address.Hex(),
		Version:     version,
		Doc:         string(raw),
		GameStatus:  string(a.GameStatus),
		IsClosed:    a.IsClosed,
		IsFinalized: a.IsFinalized,
		CreatedAtNs: a.CreatedAt.UnixNano(),
	}, nil
}

func (s *Mongo) InsertArena(ctx context.Context, a *arena.Arena) error {
	doc, err := newArenaDoc(a, 1)
	if err != nil {
		return err
	}
	if _, err := s.arenas.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", arena.ErrAlreadyExists, a.Address.Hex())
		}
		return fmt.Errorf("insert arena: %w", err)
	}
	return nil
}

func (s *Mongo) LoadArena(ctx context.Context, addr common.Address) (*arena.Arena, uint64, error) {
	var doc arenaDoc
	err := s.arenas.FindOne(ctx, bson.M{"_id": addr.Hex()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, 0, fmt.Errorf("%w: %s", arena.ErrNotFound, addr.Hex())
		}
		return nil, 0, fmt.Errorf("load arena: %w", err)
	}
	a, err := decodeArena([]byte(doc.Doc))
	if err != nil {
		return nil, 0, err
	}
	return a, doc.Version, nil
}

func (s *Mongo) ListArenas(ctx context.Context) ([]*arena.Arena, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAtNs", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.arenas.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list arenas: %w", err)
	}
	defer cur.Close(ctx)

	var out []*arena.Arena
	for cur.Next(ctx) {
		var doc arenaDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode arena row: %w", err)
		}
		a, err := decodeArena([]byte(doc.Doc))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list arenas: %w", err)
	}
	return out, nil
}

// UpdateArena commits the mutated document only when the stored version
// still equals expectedVersion; a lost race surfaces as ErrConflict and the
// caller re-reads.
func (s *Mongo) UpdateArena(ctx context.Context, addr common.Address, expectedVersion uint64, mutate func(*arena.Arena) error) (uint64, error) {
	a, version, err := s.LoadArena(ctx, addr)
	if err != nil {
		return 0, err
	}
	if version != expectedVersion {
		return 0, fmt.Errorf("%w: have %d, expected %d", arena.ErrConflict, version, expectedVersion)
	}
	if err := mutate(a); err != nil {
		return 0, err
	}
	doc, err := newArenaDoc(a, expectedVersion+1)
	if err != nil {
		return 0, err
	}

	res, err := s.arenas.ReplaceOne(ctx, bson.M{"_id": addr.Hex(), "version": expectedVersion}, doc)
	if err != nil {
		return 0, fmt.Errorf("update arena: %w", err)
	}
	if res.ModifiedCount == 0 {
		return 0, fmt.Errorf("%w: version %d superseded", arena.ErrConflict, expectedVersion)
	}
	return doc.Version, nil
}

func (s *Mongo) AppendPayoutRecord(ctx context.Context, rec arena.PayoutRecord) error {
	if _, err := s.payouts.InsertOne(ctx, bson.M{
		"arena":       rec.Arena.Hex(),
		"winner":      rec.Winner.Hex(),
		"amount":      rec.Amount.Dec(),
		"rank":        rec.Rank,
		"nonce":       rec.Nonce,
		"createdAtNs": rec.CreatedAt.UnixNano(),
	}); err != nil {
		return fmt.Errorf("append payout record: %w", err)
	}
	return nil
}

func (s *Mongo) AppendRefundIntent(ctx context.Context, rec arena.RefundIntent) error {
	if _, err := s.refunds.InsertOne(ctx, bson.M{
		"_id":         rec.ID,
		"arena":       rec.Arena.Hex(),
		"player":      rec.Player.Hex(),
		"amount":      rec.Amount.Dec(),
		"reason":      rec.Reason,
		"createdAtNs": rec.CreatedAt.UnixNano(),
	}); err != nil {
		return fmt.Errorf("append refund intent: %w", err)
	}
	return nil
}

// UpdateLeaderboard applies the delta through a bounded CAS loop. Payout
// amounts exceed uint64, so rows are read, summed in uint256 and written
// back rather than $inc'd.
func (s *Mongo) UpdateLeaderboard(ctx context.Context, player common.Address, delta arena.LeaderboardDelta) error {
	id := player.Hex()
	for attempt := 0; attempt < leaderboardCASAttempts; attempt++ {
		var doc boardDoc
		err := s.board.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			doc = boardDoc{ID: id, Version: 1, TotalPayouts: "0"}
			doc.Wins = delta.Wins
			doc.Played = delta.Played
			if delta.Payout != nil {
				doc.TotalPayouts = delta.Payout.Dec()
			}
			doc.UpdatedAtNs = s.clk.Now().UnixNano()
			if _, err := s.board.InsertOne(ctx, doc); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					continue // lost the insert race, retry as update
				}
				return fmt.Errorf("insert leaderboard row: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("load leaderboard row: %w", err)
		}

		total, err := uint256.FromDecimal(doc.TotalPayouts)
		if err != nil {
			return fmt.Errorf("leaderboard row %s: bad totalPayouts %q: %w", id, doc.TotalPayouts, err)
		}
		if delta.Payout != nil {
			total.Add(total, delta.Payout)
		}
		next := boardDoc{
			ID:           id,
			Version:      doc.Version + 1,
			Wins:         doc.Wins + delta.Wins,
			Played:       doc.Played + delta.Played,
			TotalPayouts: total.Dec(),
			UpdatedAtNs:  s.clk.Now().UnixNano(),
		}
		res, err := s.board.ReplaceOne(ctx, bson.M{"_id": id, "version": doc.Version}, next)
		if err != nil {
			return fmt.Errorf("update leaderboard row: %w", err)
		}
		if res.ModifiedCount == 1 {
			return nil
		}
	}
	return fmt.Errorf("%w: leaderboard row %s", arena.ErrConflict, id)
}

func (s *Mongo) Leaderboard(ctx context.Context, limit int) ([]arena.LeaderboardRow, error) {
	opts := options.Find().SetSort(bson.D{{Key: "wins", Value: -1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	cur, err := s.board.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer cur.Close(ctx)

	var rows []arena.LeaderboardRow
	for cur.Next(ctx) {
		var doc boardDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode leaderboard row: %w", err)
		}
		total, err := uint256.FromDecimal(doc.TotalPayouts)
		if err != nil {
			return nil, fmt.Errorf("leaderboard row %s: bad totalPayouts %q: %w", doc.ID, doc.TotalPayouts, err)
		}
		rows = append(rows, arena.LeaderboardRow{
			Player:            common.HexToAddress(doc.ID),
			Wins:              doc.Wins,
			TournamentsPlayed: doc.Played,
			TotalPayouts:      total,
			UpdatedAt:         timeFromNs(doc.UpdatedAtNs),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	return rows, nil
}
