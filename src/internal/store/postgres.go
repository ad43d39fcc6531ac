package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"go.uber.org/zap"
)

// Repository is the document store the lifecycle logic runs against.
// Update methods are compare-and-swap on the Version the caller read and
// return model.ErrConflict when somebody else wrote first.
type Repository interface {
	GetUser(ctx context.Context, uid string) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (model.User, error)
	UpdateUser(ctx context.Context, u model.User) (model.User, error)
	ListTopUsers(ctx context.Context, limit int) ([]model.User, error)

	CreateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error)
	GetChallenge(ctx context.Context, id string) (model.Challenge, error)
	UpdateChallenge(ctx context.Context, c model.Challenge) (model.Challenge, error)
	DeleteChallenge(ctx context.Context, id string) error
	ListChallenges(ctx context.Context, f model.ChallengeFilter) (model.ChallengePage, error)
	ListChallengesByParticipant(ctx context.Context, uid string) ([]model.Challenge, error)

	CreateTeam(ctx context.Context, t model.Team) (model.Team, error)
	GetTeam(ctx context.Context, id string) (model.Team, error)
	UpdateTeam(ctx context.Context, t model.Team) (model.Team, error)
	DeleteTeam(ctx context.Context, id string, version int64) error
	ListTeamsByChallenge(ctx context.Context, challengeID string) ([]model.Team, error)
	ListTeamsByMember(ctx context.Context, uid string) ([]model.Team, error)

	CreateApplication(ctx context.Context, a model.Application) (model.Application, error)
	GetApplication(ctx context.Context, id string) (model.Application, error)
	UpdateApplication(ctx context.Context, a model.Application) (model.Application, error)
	ListApplicationsByChallenge(ctx context.Context, challengeID string) ([]model.Application, error)
	ListApplicationsByApplicant(ctx context.Context, uid string) ([]model.Application, error)
	FindApplication(ctx context.Context, challengeID, uid string) (model.Application, error)
}

var _ Repository = (*Repositories)(nil)

// Repositories keeps every collection as a JSONB document next to the
// columns it is filtered and ordered on.
type Repositories struct {
	DB           *sql.DB
	Log          *zap.Logger
	Users        *UserRepo
	Challenges   *ChallengeRepo
	Teams        *TeamRepo
	Applications *ApplicationRepo
}

func NewRepositories(db *sql.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		DB:           db,
		Log:          logger,
		Users:        NewUserRepo(db, logger),
		Challenges:   NewChallengeRepo(db, logger),
		Teams:        NewTeamRepo(db, logger),
		Applications: NewApplicationRepo(db, logger),
	}
}

func (r *Repositories) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDoc decodes a (id, version, doc) row into v and returns id and version.
func scanDoc(row rowScanner, v any) (string, int64, error) {
	var (
		id      string
		version int64
		raw     []byte
	)
	if err := row.Scan(&id, &version, &raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, model.ErrNotFound
		}
		return "", 0, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return "", 0, err
	}
	return id, version, nil
}

// casResult turns the affected row count of a versioned write into an error.
// Zero rows means either the document is gone or its version moved on.
func casResult(ctx context.Context, db *sql.DB, table, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrConflict
}

func closeRows(rows *sql.Rows, log *zap.Logger, op string) {
	if err := rows.Close(); err != nil {
		log.Error(op+": close rows failed", zap.Error(err))
	}
}
