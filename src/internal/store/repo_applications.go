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

type ApplicationRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewApplicationRepo(db *sql.DB, logger *zap.Logger) *ApplicationRepo {
	return &ApplicationRepo{db: db, log: logger}
}

func (r *Repositories) CreateApplication(ctx context.Context, a model.Application) (model.Application, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.Version = 1
	r.Log.Debug("ApplicationRepo.CreateApplication: start", zap.String("challenge", a.ChallengeID), zap.String("applicant", a.ApplicantUID))

	raw, err := json.Marshal(a)
	if err != nil {
		return model.Application{}, err
	}
	if _, err := r.Applications.db.ExecContext(ctx,
		`INSERT INTO applications(id, version, challenge_id, applicant_uid, status, doc, created_at, updated_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.Version, a.ChallengeID, a.ApplicantUID, a.Status, raw, a.CreatedAt, a.UpdatedAt); err != nil {
		r.Log.Error("ApplicationRepo.CreateApplication: insert failed", zap.Error(err))
		return model.Application{}, err
	}
	r.Log.Info("ApplicationRepo.CreateApplication: success", zap.String("application", a.ID))
	return a, nil
}

func (r *Repositories) GetApplication(ctx context.Context, id string) (model.Application, error) {
	r.Log.Debug("ApplicationRepo.GetApplication: start", zap.String("application", id))
	a, err := scanApplication(r.Applications.db.QueryRowContext(ctx, `SELECT id, version, doc FROM applications WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.Log.Debug("ApplicationRepo.GetApplication: not found", zap.String("application", id))
			return model.Application{}, err
		}
		r.Log.Error("ApplicationRepo.GetApplication: query failed", zap.String("application", id), zap.Error(err))
		return model.Application{}, err
	}
	return a, nil
}

func (r *Repositories) UpdateApplication(ctx context.Context, a model.Application) (model.Application, error) {
	r.Log.Debug("ApplicationRepo.UpdateApplication: start", zap.String("application", a.ID), zap.String("status", string(a.Status)))
	prev := a.Version
	a.Version++
	raw, err := json.Marshal(a)
	if err != nil {
		return model.Application{}, err
	}
	res, err := r.Applications.db.ExecContext(ctx,
		`UPDATE applications SET version=$3, status=$4, doc=$5, updated_at=$6 WHERE id=$1 AND version=$2`,
		a.ID, prev, a.Version, a.Status, raw, a.UpdatedAt)
	if err != nil {
		r.Log.Error("ApplicationRepo.UpdateApplication: update failed", zap.String("application", a.ID), zap.Error(err))
		return model.Application{}, err
	}
	if err := casResult(ctx, r.Applications.db, "applications", a.ID, res); err != nil {
		r.Log.Debug("ApplicationRepo.UpdateApplication: rejected", zap.String("application", a.ID), zap.Error(err))
		return model.Application{}, err
	}
	r.Log.Info("ApplicationRepo.UpdateApplication: success", zap.String("application", a.ID), zap.String("status", string(a.Status)))
	return a, nil
}

func (r *Repositories) ListApplicationsByChallenge(ctx context.Context, challengeID string) ([]model.Application, error) {
	r.Log.Debug("ApplicationRepo.ListApplicationsByChallenge: start", zap.String("challenge", challengeID))
	return r.queryApplications(ctx, "ApplicationRepo.ListApplicationsByChallenge",
		`SELECT id, version, doc FROM applications WHERE challenge_id=$1 ORDER BY created_at DESC, id DESC`, challengeID)
}

func (r *Repositories) ListApplicationsByApplicant(ctx context.Context, uid string) ([]model.Application, error) {
	r.Log.Debug("ApplicationRepo.ListApplicationsByApplicant: start", zap.String("applicant", uid))
	return r.queryApplications(ctx, "ApplicationRepo.ListApplicationsByApplicant",
		`SELECT id, version, doc FROM applications WHERE applicant_uid=$1 ORDER BY created_at DESC, id DESC`, uid)
}

// FindApplication returns the oldest application of uid for the challenge.
func (r *Repositories) FindApplication(ctx context.Context, challengeID, uid string) (model.Application, error) {
	r.Log.Debug("ApplicationRepo.FindApplication: start", zap.String("challenge", challengeID), zap.String("applicant", uid))
	a, err := scanApplication(r.Applications.db.QueryRowContext(ctx,
		`SELECT id, version, doc FROM applications WHERE challenge_id=$1 AND applicant_uid=$2
		 ORDER BY created_at ASC, id ASC LIMIT 1`, challengeID, uid))
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		r.Log.Error("ApplicationRepo.FindApplication: query failed", zap.Error(err))
	}
	return a, err
}

func (r *Repositories) queryApplications(ctx context.Context, op, query string, arg string) ([]model.Application, error) {
	rows, err := r.Applications.db.QueryContext(ctx, query, arg)
	if err != nil {
		r.Log.Error(op+": query failed", zap.Error(err))
		return nil, err
	}
	defer closeRows(rows, r.Log, op)

	apps := []model.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			r.Log.Error(op+": scan failed", zap.Error(err))
			return nil, err
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		r.Log.Error(op+": rows error", zap.Error(err))
		return nil, err
	}
	return apps, nil
}

func scanApplication(row rowScanner) (model.Application, error) {
	var a model.Application
	id, version, err := scanDoc(row, &a)
	if err != nil {
		return model.Application{}, err
	}
	a.ID, a.Version = id, version
	return a, nil
}
