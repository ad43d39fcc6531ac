package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

type UserRepo struct {
	db  *sql.DB
	log *zap.Logger
}

func NewUserRepo(db *sql.DB, logger *zap.Logger) *UserRepo {
	return &UserRepo{db: db, log: logger}
}

func (r *Repositories) GetUser(ctx context.Context, uid string) (model.User, error) {
	r.Log.Debug("UserRepo.GetUser: start", zap.String("user", uid))
	var u model.User
	id, version, err := scanDoc(r.Users.db.QueryRowContext(ctx,
		`SELECT id, version, doc FROM users WHERE id=$1`, uid), &u)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			r.Log.Debug("UserRepo.GetUser: not found", zap.String("user", uid))
			return model.User{}, err
		}
		r.Log.Error("UserRepo.GetUser: query failed", zap.String("user", uid), zap.Error(err))
		return model.User{}, err
	}
	u.UID, u.Version = id, version
	return u, nil
}

func (r *Repositories) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	r.Log.Debug("UserRepo.CreateUser: start", zap.String("user", u.UID))
	u.Version = 1
	raw, err := json.Marshal(u)
	if err != nil {
		return model.User{}, err
	}
	res, err := r.Users.db.ExecContext(ctx,
		`INSERT INTO users(id, version, rating, doc, created_at, updated_at) VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO NOTHING`,
		u.UID, u.Version, u.Platform.Rating, raw, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		r.Log.Error("UserRepo.CreateUser: insert failed", zap.String("user", u.UID), zap.Error(err))
		return model.User{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		r.Log.Debug("UserRepo.CreateUser: already exists", zap.String("user", u.UID))
		return model.User{}, model.ErrConflict
	}
	r.Log.Info("UserRepo.CreateUser: success", zap.String("user", u.UID))
	return u, nil
}

func (r *Repositories) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	r.Log.Debug("UserRepo.UpdateUser: start", zap.String("user", u.UID), zap.Int64("version", u.Version))
	prev := u.Version
	u.Version++
	raw, err := json.Marshal(u)
	if err != nil {
		return model.User{}, err
	}
	res, err := r.Users.db.ExecContext(ctx,
		`UPDATE users SET version=$3, rating=$4, doc=$5, updated_at=$6 WHERE id=$1 AND version=$2`,
		u.UID, prev, u.Version, u.Platform.Rating, raw, u.UpdatedAt)
	if err != nil {
		r.Log.Error("UserRepo.UpdateUser: update failed", zap.String("user", u.UID), zap.Error(err))
		return model.User{}, err
	}
	if err := casResult(ctx, r.Users.db, "users", u.UID, res); err != nil {
		r.Log.Debug("UserRepo.UpdateUser: rejected", zap.String("user", u.UID), zap.Error(err))
		return model.User{}, err
	}
	r.Log.Info("UserRepo.UpdateUser: success", zap.String("user", u.UID), zap.Int64("version", u.Version))
	return u, nil
}

func (r *Repositories) ListTopUsers(ctx context.Context, limit int) ([]model.User, error) {
	r.Log.Debug("UserRepo.ListTopUsers: start", zap.Int("limit", limit))
	rows, err := r.Users.db.QueryContext(ctx,
		`SELECT id, version, doc FROM users ORDER BY rating DESC, created_at ASC LIMIT $1`, limit)
	if err != nil {
		r.Log.Error("UserRepo.ListTopUsers: query failed", zap.Error(err))
		return nil, err
	}
	defer closeRows(rows, r.Log, "UserRepo.ListTopUsers")

	users := []model.User{}
	for rows.Next() {
		var u model.User
		id, version, err := scanDoc(rows, &u)
		if err != nil {
			r.Log.Error("UserRepo.ListTopUsers: scan failed", zap.Error(err))
			return nil, err
		}
		u.UID, u.Version = id, version
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		r.Log.Error("UserRepo.ListTopUsers: rows error", zap.Error(err))
		return nil, err
	}
	return users, nil
}
