package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ChallengeRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewChallengeRepo(db *sql.DB, logger *zap.Logger) *ChallengeRepo {
	return &ChallengeRepo{db: db, log: logger}
}

func (r *Repositories) CreateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Version = 1
	c.Reindex()
	r.Log.Debug("ChallengeRepo.CreateChallenge: start", zap.String("challenge", c.ID), zap.String("creator", c.CreatorUID))

	raw, err := json.Marshal(c)
	if err != nil {
		return model.Challenge{}, err
	}
	if _, err := r.Challenges.db.ExecContext(ctx,
		`INSERT INTO challenges(id, version, creator_uid, type, difficulty, status, privacy, doc, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.Version, c.CreatorUID, c.Type, c.Difficulty, c.Status, c.Privacy, raw, c.CreatedAt, c.UpdatedAt); err != nil {
		r.Log.Error("ChallengeRepo.CreateChallenge: insert failed", zap.String("challenge", c.ID), zap.Error(err))
		return model.Challenge{}, err
	}

	r.Log.Info("ChallengeRepo.CreateChallenge: success", zap.String("challenge", c.ID), zap.String("type", string(c.Type)))
	return c, nil
}

func (r *Repositories) GetChallenge(ctx context.Context, id string) (model.Challenge, error) {
	r.Log.Debug("ChallengeRepo.GetChallenge: start", zap.String("challenge", id))
	c, err := scanChallenge(r.Challenges.db.QueryRowContext(ctx, `SELECT id, version, doc FROM challenges WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.Log.Debug("ChallengeRepo.GetChallenge: not found", zap.String("challenge", id))
			return model.Challenge{}, err
		}
		r.Log.Error("ChallengeRepo.GetChallenge: query failed", zap.String("challenge", id), zap.Error(err))
		return model.Challenge{}, err
	}
	return c, nil
}

func (r *Repositories) UpdateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error) {
	r.Log.Debug("ChallengeRepo.UpdateChallenge: start", zap.String("challenge", c.ID), zap.Int64("version", c.Version))
	prev := c.Version
	c.Version++
	c.Reindex()
	raw, err := json.Marshal(c)
	if err != nil {
		return model.Challenge{}, err
	}
	res, err := r.Challenges.db.ExecContext(ctx,
		`UPDATE challenges SET version=$3, status=$4, privacy=$5, doc=$6, updated_at=$7 WHERE id=$1 AND version=$2`,
		c.ID, prev, c.Version, c.Status, c.Privacy, raw, c.UpdatedAt)
	if err != nil {
		r.Log.Error("ChallengeRepo.UpdateChallenge: update failed", zap.String("challenge", c.ID), zap.Error(err))
		return model.Challenge{}, err
	}
	if err := casResult(ctx, r.Challenges.db, "challenges", c.ID, res); err != nil {
		r.Log.Debug("ChallengeRepo.UpdateChallenge: rejected", zap.String("challenge", c.ID), zap.Error(err))
		return model.Challenge{}, err
	}
	r.Log.Info("ChallengeRepo.UpdateChallenge: success", zap.String("challenge", c.ID), zap.Int64("version", c.Version),
		zap.Int("participants", len(c.Participants)), zap.Int("submissions", len(c.Submissions)))
	return c, nil
}

func (r *Repositories) DeleteChallenge(ctx context.Context, id string) error {
	r.Log.Debug("ChallengeRepo.DeleteChallenge: start", zap.String("challenge", id))
	res, err := r.Challenges.db.ExecContext(ctx, `DELETE FROM challenges WHERE id=$1`, id)
	if err != nil {
		r.Log.Error("ChallengeRepo.DeleteChallenge: delete failed", zap.String("challenge", id), zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	r.Log.Info("ChallengeRepo.DeleteChallenge: success", zap.String("challenge", id))
	return nil
}

// ListChallenges pages newest first. The cursor is the id of the last item of the previous page.
func (r *Repositories) ListChallenges(ctx context.Context, f model.ChallengeFilter) (model.ChallengePage, error) {
	size := f.PageSize()
	r.Log.Debug("ChallengeRepo.ListChallenges: start", zap.Any("filter", f))
	rows, err := r.Challenges.db.QueryContext(ctx,
		`SELECT id, version, doc FROM challenges
		 WHERE ($1 = '' OR type = $1)
		   AND ($2 = '' OR difficulty = $2)
		   AND ($3 = '' OR status = $3)
		   AND ($4 = '' OR creator_uid = $4)
		   AND ($5 = '' OR privacy = $5)
		   AND ($6 = '' OR (created_at, id) < (SELECT created_at, id FROM challenges WHERE id = $6))
		 ORDER BY created_at DESC, id DESC
		 LIMIT $7`,
		string(f.Type), string(f.Difficulty), string(f.Status), f.CreatorUID, string(f.Privacy), f.Cursor, size+1)
	if err != nil {
		r.Log.Error("ChallengeRepo.ListChallenges: query failed", zap.Error(err))
		return model.ChallengePage{}, err
	}
	defer closeRows(rows, r.Log, "ChallengeRepo.ListChallenges")

	items, err := collectChallenges(rows)
	if err != nil {
		r.Log.Error("ChallengeRepo.ListChallenges: scan failed", zap.Error(err))
		return model.ChallengePage{}, err
	}
	page := model.ChallengePage{Items: items}
	if len(items) > size {
		page.Items = items[:size]
		page.NextCursor = items[size-1].ID
	}
	r.Log.Debug("ChallengeRepo.ListChallenges: success", zap.Int("count", len(page.Items)))
	return page, nil
}

func (r *Repositories) ListChallengesByParticipant(ctx context.Context, uid string) ([]model.Challenge, error) {
	r.Log.Debug("ChallengeRepo.ListChallengesByParticipant: start", zap.String("user", uid))
	rows, err := r.Challenges.db.QueryContext(ctx,
		`SELECT id, version, doc FROM challenges
		 WHERE doc->'participants' @> jsonb_build_array(jsonb_build_object('user_uid', $1::text))
		 ORDER BY created_at DESC, id DESC`, uid)
	if err != nil {
		r.Log.Error("ChallengeRepo.ListChallengesByParticipant: query failed", zap.String("user", uid), zap.Error(err))
		return nil, err
	}
	defer closeRows(rows, r.Log, "ChallengeRepo.ListChallengesByParticipant")

	items, err := collectChallenges(rows)
	if err != nil {
		r.Log.Error("ChallengeRepo.ListChallengesByParticipant: scan failed", zap.Error(err))
		return nil, err
	}
	return items, nil
}

func scanChallenge(row rowScanner) (model.Challenge, error) {
	var c model.Challenge
	id, version, err := scanDoc(row, &c)
	if err != nil {
		return model.Challenge{}, err
	}
	c.ID, c.Version = id, version
	c.Reindex()
	return c, nil
}

func collectChallenges(rows *sql.Rows) ([]model.Challenge, error) {
	items := []model.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
