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

type TeamRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewTeamRepo(db *sql.DB, logger *zap.Logger) *TeamRepo {
	return &TeamRepo{db: db, log: logger}
}

func (r *Repositories) CreateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.Version = 1
	t.Reindex()
	r.Log.Debug("TeamRepo.CreateTeam: start", zap.String("team", t.ID), zap.String("challenge", t.ChallengeID))

	raw, err := json.Marshal(t)
	if err != nil {
		return model.Team{}, err
	}
	if _, err := r.Teams.db.ExecContext(ctx,
		`INSERT INTO teams(id, version, challenge_id, doc, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$6)`,
		t.ID, t.Version, t.ChallengeID, raw, t.CreatedAt, t.UpdatedAt); err != nil {
		r.Log.Error("TeamRepo.CreateTeam: insert failed", zap.String("team", t.ID), zap.Error(err))
		return model.Team{}, err
	}

	r.Log.Info("TeamRepo.CreateTeam: success", zap.String("team", t.ID), zap.Int("members", len(t.Members)))
	return t, nil
}

func (r *Repositories) GetTeam(ctx context.Context, id string) (model.Team, error) {
	r.Log.Debug("TeamRepo.GetTeam: start", zap.String("team", id))
	t, err := scanTeam(r.Teams.db.QueryRowContext(ctx, `SELECT id, version, doc FROM teams WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.Log.Debug("TeamRepo.GetTeam: not found", zap.String("team", id))
			return model.Team{}, err
		}
		r.Log.Error("TeamRepo.GetTeam: query failed", zap.String("team", id), zap.Error(err))
		return model.Team{}, err
	}
	r.Log.Debug("TeamRepo.GetTeam: success", zap.String("team", id), zap.Int("members", len(t.Members)))
	return t, nil
}

func (r *Repositories) UpdateTeam(ctx context.Context, t model.Team) (model.Team, error) {
	r.Log.Debug("TeamRepo.UpdateTeam: start", zap.String("team", t.ID), zap.Int64("version", t.Version))
	prev := t.Version
	t.Version++
	t.Reindex()
	raw, err := json.Marshal(t)
	if err != nil {
		return model.Team{}, err
	}
	res, err := r.Teams.db.ExecContext(ctx,
		`UPDATE teams SET version=$3, doc=$4, updated_at=$5 WHERE id=$1 AND version=$2`,
		t.ID, prev, t.Version, raw, t.UpdatedAt)
	if err != nil {
		r.Log.Error("TeamRepo.UpdateTeam: update failed", zap.String("team", t.ID), zap.Error(err))
		return model.Team{}, err
	}
	if err := casResult(ctx, r.Teams.db, "teams", t.ID, res); err != nil {
		r.Log.Debug("TeamRepo.UpdateTeam: rejected", zap.String("team", t.ID), zap.Error(err))
		return model.Team{}, err
	}
	r.Log.Info("TeamRepo.UpdateTeam: success", zap.String("team", t.ID), zap.String("leader", t.LeaderUID),
		zap.Int("active", t.ActiveCount()))
	return t, nil
}

// DeleteTeam removes the team only while its stored version is still version.
func (r *Repositories) DeleteTeam(ctx context.Context, id string, version int64) error {
	r.Log.Debug("TeamRepo.DeleteTeam: start", zap.String("team", id), zap.Int64("version", version))
	res, err := r.Teams.db.ExecContext(ctx, `DELETE FROM teams WHERE id=$1 AND version=$2`, id, version)
	if err != nil {
		r.Log.Error("TeamRepo.DeleteTeam: delete failed", zap.String("team", id), zap.Error(err))
		return err
	}
	if err := casResult(ctx, r.Teams.db, "teams", id, res); err != nil {
		r.Log.Debug("TeamRepo.DeleteTeam: rejected", zap.String("team", id), zap.Error(err))
		return err
	}
	r.Log.Info("TeamRepo.DeleteTeam: success", zap.String("team", id))
	return nil
}

func (r *Repositories) ListTeamsByChallenge(ctx context.Context, challengeID string) ([]model.Team, error) {
	r.Log.Debug("TeamRepo.ListTeamsByChallenge: start", zap.String("challenge", challengeID))
	rows, err := r.Teams.db.QueryContext(ctx,
		`SELECT id, version, doc FROM teams WHERE challenge_id=$1 ORDER BY created_at ASC, id ASC`, challengeID)
	if err != nil {
		r.Log.Error("TeamRepo.ListTeamsByChallenge: query failed", zap.Error(err))
		return nil, err
	}
	defer closeRows(rows, r.Log, "TeamRepo.ListTeamsByChallenge")
	return collectTeams(rows)
}

func (r *Repositories) ListTeamsByMember(ctx context.Context, uid string) ([]model.Team, error) {
	r.Log.Debug("TeamRepo.ListTeamsByMember: start", zap.String("user", uid))
	rows, err := r.Teams.db.QueryContext(ctx,
		`SELECT id, version, doc FROM teams
		 WHERE doc->'members' @> jsonb_build_array(jsonb_build_object('user_uid', $1::text, 'status', 'active'))
		 ORDER BY created_at DESC, id DESC`, uid)
	if err != nil {
		r.Log.Error("TeamRepo.ListTeamsByMember: query failed", zap.Error(err))
		return nil, err
	}
	defer closeRows(rows, r.Log, "TeamRepo.ListTeamsByMember")
	return collectTeams(rows)
}

func scanTeam(row rowScanner) (model.Team, error) {
	var t model.Team
	id, version, err := scanDoc(row, &t)
	if err != nil {
		return model.Team{}, err
	}
	t.ID, t.Version = id, version
	t.Reindex()
	return t, nil
}

func collectTeams(rows *sql.Rows) ([]model.Team, error) {
	teams := []model.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}
